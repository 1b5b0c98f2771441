package schema

import (
	"fmt"
	"sort"
)

// SessionInfo describes where a unit artifact came from.
type SessionInfo struct {
	SessionName     string  `json:"session_name"`
	ProbeLabel      string  `json:"probe_label"`
	RecordingNumber string  `json:"recording_number"`
	RunUUID         string  `json:"run_uuid"`
	ProbeSampleRate float64 `json:"probe_sample_rate"`
	Seed            uint64  `json:"seed"`
}

// OptoLevel holds the PSTHs of every cluster for one stimulus level.
type OptoLevel struct {
	Level    float64      `json:"level"`
	Clusters map[int]PSTH `json:"clusters"`
}

// OptoCondition holds the responses to one stimulus condition.
type OptoCondition struct {
	Condition    string      `json:"condition"`
	Name         string      `json:"name"`
	Levels       []OptoLevel `json:"levels"`
	StimWaveform []float64   `json:"stim_waveform"`
	Params       PSTHParams  `json:"params"`
}

// ConditionKey returns the artifact key of a stimulus condition.
func ConditionKey(condition string) string {
	return fmt.Sprintf("stim_%s", condition)
}

// UnitArtifact is the serialized hand-off of one recording/probe unit.
type UnitArtifact struct {
	ExtractionParams ExtractionParams         `json:"extraction_params"`
	ClusterData      map[int]ClusterWaveform  `json:"cluster_data"`
	SessionInfo      SessionInfo              `json:"session_info"`
	GoodClusters     []int                    `json:"good_clusters"`
	OptoData         map[string]OptoCondition `json:"opto_data"`
	Alignment        ClockOffset              `json:"alignment"`
}

// ClusterIDs returns the ids of the extracted clusters in ascending order.
func (a *UnitArtifact) ClusterIDs() []int {
	ids := make([]int, 0, len(a.ClusterData))
	for id := range a.ClusterData {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
