// Package parquet exports spikewave run history to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/spikewave/schema"
	"github.com/parquet-go/parquet-go"
)

// Run is one pipeline run over a session.
// This struct maps to the spikewave_runs database table.
type Run struct {
	RunID       int64  `parquet:"run_id,snappy"`
	RunUUID     string `parquet:"run_uuid,snappy"`
	SessionName string `parquet:"session_name,snappy,dict"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is nil while the run is in progress or when it crashed
	EndTime        *time.Time `parquet:"end_time,optional,snappy"`
	RunDurationMs  *int64     `parquet:"run_duration_ms,optional,snappy"`
	UnitsCompleted *int32     `parquet:"units_completed,optional,snappy"`
	UnitsSkipped   *int32     `parquet:"units_skipped,optional,snappy"`
	UnitsFailed    *int32     `parquet:"units_failed,optional,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// UnitResult is the outcome of one recording/probe unit within a run.
// This struct maps to the spikewave_unit_results database table.
type UnitResult struct {
	RunID        int64   `parquet:"run_id,snappy"`
	SessionName  string  `parquet:"session_name,snappy,dict"`
	Recording    string  `parquet:"recording,snappy,dict"`
	Probe        string  `parquet:"probe,snappy,dict"`
	State        string  `parquet:"state,snappy,dict"`
	Reason       *string `parquet:"reason,optional,snappy"`
	ArtifactPath *string `parquet:"artifact_path,optional,snappy"`
	Clusters     int32   `parquet:"clusters,snappy"`
	DurationMs   int64   `parquet:"duration_ms,snappy"`
}

// ClusterSummary holds the extraction stats of one cluster.
// This struct maps to the spikewave_cluster_summaries database table.
type ClusterSummary struct {
	RunID      int64  `parquet:"run_id,snappy"`
	Recording  string `parquet:"recording,snappy,dict"`
	Probe      string `parquet:"probe,snappy,dict"`
	ClusterID  int32  `parquet:"cluster_id,snappy"`
	SpikeCount int32  `parquet:"spike_count,snappy"`
	ValidDraws int32  `parquet:"valid_draws,snappy"`
	TotalDraws int32  `parquet:"total_draws,snappy"`

	// PeakSNR is the largest absolute per-cell SNR of the mean waveform
	PeakSNR float64 `parquet:"peak_snr,snappy"`
}

// writeParquet writes rows to outputPath with a schema inferred from T's struct tags.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Close()
}

// WriteRunsParquet writes runs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteUnitResultsParquet writes unit results to a Parquet file.
func WriteUnitResultsParquet(data []UnitResult, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteClusterSummariesParquet writes cluster summaries to a Parquet file.
func WriteClusterSummariesParquet(data []ClusterSummary, outputPath string) error {
	return writeParquet(data, outputPath)
}

// ConvertRunRecords converts schema.RunRecord to Run for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, record := range records {
		result[i] = Run{
			RunID:          record.RunID,
			RunUUID:        record.RunUUID,
			SessionName:    record.SessionName,
			StartTime:      record.StartTime,
			EndTime:        record.EndTime,
			RunDurationMs:  record.RunDurationMs,
			UnitsCompleted: record.UnitsCompleted,
			UnitsSkipped:   record.UnitsSkipped,
			UnitsFailed:    record.UnitsFailed,
			ConfigParams:   record.ConfigParams,
		}
	}
	return result
}

// ConvertUnitResultRecords converts schema.UnitResultRecord to UnitResult for Parquet export.
func ConvertUnitResultRecords(records []schema.UnitResultRecord) []UnitResult {
	result := make([]UnitResult, len(records))
	for i, record := range records {
		result[i] = UnitResult{
			RunID:        record.RunID,
			SessionName:  record.SessionName,
			Recording:    record.Recording,
			Probe:        record.Probe,
			State:        record.State,
			Reason:       record.Reason,
			ArtifactPath: record.ArtifactPath,
			Clusters:     record.Clusters,
			DurationMs:   record.DurationMs,
		}
	}
	return result
}

// ConvertClusterSummaryRecords converts schema.ClusterSummaryRecord to ClusterSummary for Parquet export.
func ConvertClusterSummaryRecords(records []schema.ClusterSummaryRecord) []ClusterSummary {
	result := make([]ClusterSummary, len(records))
	for i, record := range records {
		result[i] = ClusterSummary(record)
	}
	return result
}
