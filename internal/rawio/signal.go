// Package rawio has read-only adapters for the on-disk inputs of a recording: the raw int16 signal,
// .npy arrays written by the acquisition and sorting tools, cluster labels and trial metadata.
package rawio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/huangsam/spikewave/internal/contract"
)

const bytesPerSample = 2

// Signal is a flat little-endian int16 recording shaped (samples, channels) read through
// windowed ReadAt calls, so only the requested rows are ever materialized.
type Signal struct {
	r          io.ReaderAt
	closer     io.Closer
	numSamples int64
	nChannels  int
}

var _ contract.RawSignal = &Signal{} // Compile-time check

// OpenSignal opens a raw .dat/.bin file with nChannels interleaved channels.
func OpenSignal(path string, nChannels int) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: raw signal: %w", contract.ErrMissingInput, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat raw signal: %w", err)
	}
	s, err := NewSignal(f, info.Size(), nChannels)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.closer = f
	return s, nil
}

// NewSignal wraps any ReaderAt holding size bytes of interleaved int16 samples.
func NewSignal(r io.ReaderAt, size int64, nChannels int) (*Signal, error) {
	if nChannels <= 0 {
		return nil, fmt.Errorf("channel count must be greater than 0 (received %d)", nChannels)
	}
	rowBytes := int64(nChannels * bytesPerSample)
	if size%rowBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel rows", contract.ErrInsufficientData, size, nChannels)
	}
	return &Signal{r: r, numSamples: size / rowBytes, nChannels: nChannels}, nil
}

// NewMemorySignal builds a signal over in-memory samples laid out row by row.
func NewMemorySignal(data []int16, nChannels int) *Signal {
	buf := make([]byte, len(data)*bytesPerSample)
	for i, v := range data {
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(v))
	}
	s, err := NewSignal(bytes.NewReader(buf), int64(len(buf)), nChannels)
	if err != nil {
		panic(err)
	}
	return s
}

// NumSamples returns the number of rows.
func (s *Signal) NumSamples() int64 { return s.numSamples }

// NumChannels returns the number of interleaved channels.
func (s *Signal) NumChannels() int { return s.nChannels }

// ReadWindow fills dst with rows [start, end) in row-major order.
func (s *Signal) ReadWindow(start, end int64, dst []int16) error {
	if start < 0 || end > s.numSamples || start >= end {
		return fmt.Errorf("%w: window [%d, %d) outside [0, %d)", contract.ErrBoundaryTruncation, start, end, s.numSamples)
	}
	n := int(end-start) * s.nChannels
	if len(dst) < n {
		return fmt.Errorf("destination holds %d values, window needs %d", len(dst), n)
	}
	rowBytes := int64(s.nChannels * bytesPerSample)
	section := io.NewSectionReader(s.r, start*rowBytes, (end-start)*rowBytes)
	return binary.Read(section, binary.LittleEndian, dst[:n])
}

// Close releases the underlying file, if any.
func (s *Signal) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
