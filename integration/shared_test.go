//go:build integration || database

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// sharedBinaryPath holds the path to a shared spikewave binary built once for all tests.
	sharedBinaryPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	// Run all tests
	code := m.Run()

	// Cleanup the shared binary after all tests
	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getSpikewaveBinary returns the path to the spikewave binary, building it once if needed.
func getSpikewaveBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		// Create a temp directory for the binary
		var err error
		tempDir, err = os.MkdirTemp("", "spikewave-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		binaryPath := filepath.Join(tempDir, "spikewave")
		buildCmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/spikewave")
		buildCmd.Dir = ".." // Build from parent directory (project root)
		if output, err := buildCmd.CombinedOutput(); err != nil {
			panic(fmt.Sprintf("failed to build spikewave: %v\n%s", err, output))
		}

		sharedBinaryPath = binaryPath
	})

	return sharedBinaryPath
}

// runSpikewave runs the binary with extra environment variables and returns its combined output.
func runSpikewave(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getSpikewaveBinary(), args...)
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Command failed: %s\nOutput: %s", cmd.String(), string(output))
	}
	return string(output), err
}

// simulateSession writes a two-probe synthetic session and returns its config path.
func simulateSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := runSpikewave(t, nil, "simulate", "--dir", dir, "--probes", "A,B")
	require.NoError(t, err)
	return filepath.Join(dir, "spikewave.yaml")
}
