package parquet

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/spikewave/schema"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	reader := parquet.NewGenericReader[T](file)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		model   any
		columns []string
	}{
		{"runs", new(Run), []string{"run_id", "run_uuid", "session_name", "start_time", "end_time", "run_duration_ms", "units_completed", "units_skipped", "units_failed", "config_params"}},
		{"unit results", new(UnitResult), []string{"run_id", "session_name", "recording", "probe", "state", "reason", "artifact_path", "clusters", "duration_ms"}},
		{"cluster summaries", new(ClusterSummary), []string{"run_id", "recording", "probe", "cluster_id", "spike_count", "valid_draws", "total_draws", "peak_snr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parquet.SchemaOf(tt.model)
			for _, col := range tt.columns {
				_, ok := s.Lookup(col)
				assert.True(t, ok, "column %s should exist in schema", col)
			}
		})
	}
}

func TestWriteRunsParquet(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	records := []schema.RunRecord{
		{
			RunID: 1, RunUUID: "0b3e", SessionName: "2024-03-01_611311", StartTime: start,
			EndTime: &end, RunDurationMs: ptr(int64(90000)),
			UnitsCompleted: ptr(int32(3)), UnitsSkipped: ptr(int32(1)), UnitsFailed: ptr(int32(0)),
			ConfigParams: ptr(`{"workers":4}`),
		},
		// A crashed run never gets its end columns.
		{RunID: 2, RunUUID: "9f21", SessionName: "2024-03-01_611311", StartTime: end},
	}

	path := filepath.Join(t.TempDir(), "runs.parquet")
	require.NoError(t, WriteRunsParquet(ConvertRunRecords(records), path))

	got := readAll[Run](t, path)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].RunID)
	assert.Equal(t, "2024-03-01_611311", got[0].SessionName)
	require.NotNil(t, got[0].EndTime)
	assert.WithinDuration(t, end, *got[0].EndTime, time.Nanosecond)
	assert.Equal(t, int32(3), *got[0].UnitsCompleted)
	assert.Equal(t, `{"workers":4}`, *got[0].ConfigParams)

	assert.Nil(t, got[1].EndTime)
	assert.Nil(t, got[1].RunDurationMs)
	assert.Nil(t, got[1].ConfigParams)
}

func TestWriteUnitResultsAndSummaries(t *testing.T) {
	dir := t.TempDir()
	results := []schema.UnitResultRecord{
		{RunID: 1, SessionName: "s", Recording: "recording1", Probe: "A", State: "completed", ArtifactPath: ptr("/out/a.msgpack"), Clusters: 12, DurationMs: 400},
		{RunID: 1, SessionName: "s", Recording: "recording1", Probe: "B", State: "skipped", Reason: ptr("flagged")},
	}
	resultsPath := filepath.Join(dir, "units.parquet")
	require.NoError(t, WriteUnitResultsParquet(ConvertUnitResultRecords(results), resultsPath))

	gotResults := readAll[UnitResult](t, resultsPath)
	require.Len(t, gotResults, 2)
	assert.Equal(t, "completed", gotResults[0].State)
	assert.Equal(t, int32(12), gotResults[0].Clusters)
	assert.Nil(t, gotResults[0].Reason)
	assert.Equal(t, "flagged", *gotResults[1].Reason)
	assert.Nil(t, gotResults[1].ArtifactPath)

	summaries := []schema.ClusterSummaryRecord{
		{RunID: 1, Recording: "recording1", Probe: "A", ClusterID: 4, SpikeCount: 1200, ValidDraws: 19950, TotalDraws: 20000, PeakSNR: 7.25},
	}
	summariesPath := filepath.Join(dir, "clusters.parquet")
	require.NoError(t, WriteClusterSummariesParquet(ConvertClusterSummaryRecords(summaries), summariesPath))

	gotSummaries := readAll[ClusterSummary](t, summariesPath)
	require.Len(t, gotSummaries, 1)
	assert.Equal(t, ClusterSummary(summaries[0]), gotSummaries[0])
}

func TestWriteEmptyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteRunsParquet(nil, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Empty(t, readAll[Run](t, path))
}

func TestWriteInvalidPath(t *testing.T) {
	err := WriteClusterSummariesParquet(nil, filepath.Join(t.TempDir(), "missing", "x.parquet"))
	assert.ErrorContains(t, err, "failed to create output file")
}
