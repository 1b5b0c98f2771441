// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"time"

	"github.com/huangsam/spikewave/schema"
)

// RawSignal is a read-only, sample-major int16 recording.
// Implementations must be safe for concurrent ReadWindow calls.
type RawSignal interface {
	// NumSamples returns the number of samples per channel.
	NumSamples() int64

	// NumChannels returns the number of interleaved channels.
	NumChannels() int

	// ReadWindow fills dst with samples [start, end) across all channels.
	// dst must hold (end-start)*NumChannels() values.
	ReadWindow(start, end int64, dst []int16) error
}

// StoreManager defines the interface for managing the persistence stores.
// This allows the store layer to be mocked for testing.
type StoreManager interface {
	GetFlagStore() FlagStore
	GetRunStore() RunStore
}

// FlagStore persists the per-unit skip state.
// It is the only shared mutable resource of a session.
type FlagStore interface {
	// Get returns the flag of a unit and whether one exists
	Get(unit schema.UnitKey) (schema.UnitFlag, bool, error)

	// Set creates or replaces the flag of a unit
	Set(flag schema.UnitFlag) error

	// Clear removes the flag of a unit
	Clear(unit schema.UnitKey) error

	// List returns every flag ordered by unit
	List() ([]schema.UnitFlag, error)

	// GetStatus returns status information about the flag store
	GetStatus() (schema.FlagStatus, error)

	// Close closes the underlying connection
	Close() error
}

// RunStore tracks pipeline runs, unit outcomes and cluster summaries.
type RunStore interface {
	// BeginRun creates a new run and returns its unique ID
	BeginRun(runUUID, session string, startTime time.Time, configParams map[string]any) (int64, error)

	// RecordUnitResult stores the outcome of one unit
	RecordUnitResult(runID int64, result schema.UnitResult) error

	// RecordClusterSummaries stores per-cluster extraction stats of one unit
	RecordClusterSummaries(runID int64, rows []schema.ClusterSummaryRecord) error

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, completed, skipped, failed int) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	GetAllRuns() ([]schema.RunRecord, error)
	GetAllUnitResults() ([]schema.UnitResultRecord, error)
	GetAllClusterSummaries() ([]schema.ClusterSummaryRecord, error)

	// Close closes the underlying connection
	Close() error
}
