package schema

import "time"

// FlagStatus represents the status of the flag store.
type FlagStatus struct {
	Backend      string    `json:"backend"`
	Connected    bool      `json:"connected"`
	TotalFlags   int       `json:"total_flags"`
	SkipFlags    int       `json:"skip_flags"`
	LastFlagTime time.Time `json:"last_flag_time"`
}

// RunStatus represents the status of the run tracking store.
type RunStatus struct {
	Backend       string           `json:"backend"`
	Connected     bool             `json:"connected"`
	TotalRuns     int              `json:"total_runs"`
	LastRunID     int64            `json:"last_run_id"`
	LastRunUUID   string           `json:"last_run_uuid"`
	LastRunTime   time.Time        `json:"last_run_time"`
	OldestRunTime time.Time        `json:"oldest_run_time"`
	UnitsByState  map[string]int   `json:"units_by_state"`
	TotalClusters int              `json:"total_clusters"`
	TableSizes    map[string]int64 `json:"table_sizes"`
}

// RunRecord represents a row from the spikewave_runs table.
type RunRecord struct {
	RunID          int64
	RunUUID        string
	SessionName    string
	StartTime      time.Time
	EndTime        *time.Time
	RunDurationMs  *int64
	UnitsCompleted *int32
	UnitsSkipped   *int32
	UnitsFailed    *int32
	ConfigParams   *string
}

// UnitResultRecord represents a row from the spikewave_unit_results table.
type UnitResultRecord struct {
	RunID        int64
	SessionName  string
	Recording    string
	Probe        string
	State        string
	Reason       *string
	ArtifactPath *string
	Clusters     int32
	DurationMs   int64
}

// ClusterSummaryRecord represents a row from the spikewave_cluster_summaries table.
type ClusterSummaryRecord struct {
	RunID      int64
	Recording  string
	Probe      string
	ClusterID  int32
	SpikeCount int32
	ValidDraws int32
	TotalDraws int32
	PeakSNR    float64
}

// UnitStatusRow is one line of the session status summary.
type UnitStatusRow struct {
	Unit        UnitKey `json:"unit"`
	RawSignal   bool    `json:"raw_signal"`
	SortingData bool    `json:"sorting_data"`
	Artifact    bool    `json:"artifact"`
	Skip        bool    `json:"skip"`
	FlagReason  string  `json:"flag_reason"`
}
