package outwriter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/huangsam/spikewave/schema"
	"github.com/vmihailenco/msgpack/v5"
)

// ArtifactPath returns where the artifact of a unit is published:
// <outputDir>/<session>/probe<P>/extracted_data_<recording>_probe<P>.<ext>
func ArtifactPath(outputDir string, unit schema.UnitKey, format schema.ArtifactFormat) string {
	name := fmt.Sprintf("extracted_data_%s_probe%s%s", unit.Recording, unit.Probe, format.Extension())
	return filepath.Join(outputDir, unit.Session, "probe"+unit.Probe, name)
}

// EncodeArtifact serializes an artifact. Msgpack reuses the json struct tags so both formats share field names.
func EncodeArtifact(w io.Writer, artifact *schema.UnitArtifact, format schema.ArtifactFormat) error {
	switch format {
	case schema.JSONArtifact:
		if err := json.NewEncoder(w).Encode(artifact); err != nil {
			return fmt.Errorf("failed to encode JSON artifact: %w", err)
		}
	default:
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json")
		if err := encoder.Encode(artifact); err != nil {
			return fmt.Errorf("failed to encode msgpack artifact: %w", err)
		}
	}
	return nil
}

// DecodeArtifact reads an artifact written by EncodeArtifact.
func DecodeArtifact(r io.Reader, format schema.ArtifactFormat) (*schema.UnitArtifact, error) {
	var artifact schema.UnitArtifact
	switch format {
	case schema.JSONArtifact:
		if err := json.NewDecoder(r).Decode(&artifact); err != nil {
			return nil, fmt.Errorf("failed to decode JSON artifact: %w", err)
		}
	default:
		decoder := msgpack.NewDecoder(r)
		decoder.SetCustomStructTag("json")
		if err := decoder.Decode(&artifact); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack artifact: %w", err)
		}
	}
	return &artifact, nil
}

// FormatFromPath infers the artifact format from a file extension.
func FormatFromPath(path string) schema.ArtifactFormat {
	if strings.EqualFold(filepath.Ext(path), schema.JSONArtifact.Extension()) {
		return schema.JSONArtifact
	}
	return schema.MsgpackArtifact
}

// ReadArtifact loads a published artifact from disk.
func ReadArtifact(path string) (*schema.UnitArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return DecodeArtifact(bufio.NewReader(f), FormatFromPath(path))
}

// WriteArtifact publishes an artifact atomically: it is encoded into a temp file in the
// destination directory and renamed into place, so readers never see a partial unit.
func WriteArtifact(path string, artifact *schema.UnitArtifact, format schema.ArtifactFormat) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".extracted_data_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = EncodeArtifact(buf, artifact, format); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish artifact %s: %w", path, err)
	}
	return nil
}
