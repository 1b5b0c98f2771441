package rawio

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/huangsam/spikewave/internal/contract"
)

// Condition is a stimulus condition id. Metadata files write it either as a string or a number.
type Condition string

// UnmarshalJSON accepts "0" and 0 alike.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Condition(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("condition must be a string or number: %w", err)
	}
	*c = Condition(n.String())
	return nil
}

// TrialMetadata lists every opto trial of a recording in presentation order.
type TrialMetadata struct {
	Conditions []Condition          `json:"opto_conditions"`
	Levels     []float64            `json:"opto_levels"`
	Waveforms  map[string][]float64 `json:"opto_waveforms"`
}

// LoadTrials reads the trial metadata JSON of a recording.
func LoadTrials(path string) (*TrialMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contract.ErrMissingInput, path)
		}
		return nil, err
	}
	var meta TrialMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse trial metadata %s: %w", path, err)
	}
	if len(meta.Conditions) != len(meta.Levels) {
		return nil, fmt.Errorf("%w: %d trial conditions vs %d levels", contract.ErrInsufficientData, len(meta.Conditions), len(meta.Levels))
	}
	return &meta, nil
}

// NumTrials returns the number of trials.
func (m *TrialMetadata) NumTrials() int {
	return len(m.Conditions)
}

// UniqueConditions returns the distinct conditions, sorted numerically when every id is a number.
func (m *TrialMetadata) UniqueConditions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range m.Conditions {
		if _, ok := seen[string(c)]; !ok {
			seen[string(c)] = struct{}{}
			out = append(out, string(c))
		}
	}
	slices.SortFunc(out, compareConditions)
	return out
}

// UniqueLevels returns the distinct levels in ascending order.
func (m *TrialMetadata) UniqueLevels() []float64 {
	out := slices.Clone(m.Levels)
	slices.Sort(out)
	return slices.Compact(out)
}

// Select returns the indices of trials with the given condition and level.
func (m *TrialMetadata) Select(condition string, level float64) []int {
	var idx []int
	for i, c := range m.Conditions {
		if string(c) == condition && m.Levels[i] == level {
			idx = append(idx, i)
		}
	}
	return idx
}

func compareConditions(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(a, b)
}
