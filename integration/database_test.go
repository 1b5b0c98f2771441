//go:build database

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestSpikewaveWithMySQL tests the spikewave CLI with a MySQL backend.
func TestSpikewaveWithMySQL(t *testing.T) {
	ctx := context.Background()

	// Start MySQL container
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306:3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "spikewave",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(30 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = mysqlC.Terminate(ctx) }()

	// Get connection details
	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)

	connStr := fmt.Sprintf("root:secret123@tcp(%s:%s)/spikewave?parseTime=true", host, port.Port())
	exerciseBackend(t, "mysql", connStr)
}

// TestSpikewaveWithPostgres tests the spikewave CLI with a PostgreSQL backend.
func TestSpikewaveWithPostgres(t *testing.T) {
	ctx := context.Background()

	// Start Postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432:5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()
	time.Sleep(5 * time.Second)

	// Get connection details
	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres", host, port.Port())
	exerciseBackend(t, "postgresql", connStr)
}

// exerciseBackend runs a simulated session with flags and run tracking stored in one database.
func exerciseBackend(t *testing.T, backend, connStr string) {
	env := []string{
		"SPIKEWAVE_FLAG_BACKEND=" + backend,
		"SPIKEWAVE_FLAG_DB_CONNECT=" + connStr,
		"SPIKEWAVE_RUN_BACKEND=" + backend,
		"SPIKEWAVE_RUN_DB_CONNECT=" + connStr,
	}
	configPath := simulateSession(t)

	// Start from empty stores
	_, err := runSpikewave(t, env, "flags", "clear", "--config", configPath)
	require.NoError(t, err)
	_, err = runSpikewave(t, env, "runs", "clear", "--config", configPath)
	require.NoError(t, err)
	_, err = runSpikewave(t, env, "runs", "migrate", "--config", configPath)
	require.NoError(t, err)

	// Flag probe B so the run skips it
	_, err = runSpikewave(t, env, "flags", "set", "1", "B", "--reason", "noisy", "--config", configPath)
	require.NoError(t, err)

	output, err := runSpikewave(t, env, "run", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Units: 1 completed, 1 skipped, 0 failed")

	output, err = runSpikewave(t, env, "flags", "list", "--output", "csv", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "noisy")

	output, err = runSpikewave(t, env, "runs", "status", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Total Runs: 1")

	exportFile := filepath.Join(t.TempDir(), "history")
	_, err = runSpikewave(t, env, "runs", "export", "--output-file", exportFile, "--config", configPath)
	require.NoError(t, err)
	assert.FileExists(t, exportFile+".runs.parquet")
	assert.FileExists(t, exportFile+".cluster_summaries.parquet")
}
