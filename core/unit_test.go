package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/huangsam/spikewave/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	key := schema.UnitKey{Session: "s", Recording: "1", Probe: "A"}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		err   error
		state schema.UnitState
	}{
		{"missing input skips", context.Background(), fmt.Errorf("spike times: %w", contract.ErrMissingInput), schema.UnitSkipped},
		{"alignment fails", context.Background(), contract.ErrAlignmentFailure, schema.UnitFailed},
		{"insufficient data fails", context.Background(), contract.ErrInsufficientData, schema.UnitFailed},
		{"cancellation wins", cancelled, contract.ErrMissingInput, schema.UnitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := classify(tt.ctx, key, tt.err)
			assert.Equal(t, key, res.Unit)
			assert.Equal(t, tt.state, res.State)
			assert.NotEmpty(t, res.Reason)
			assert.Error(t, res.Err)
		})
	}
}

func TestClusterSummaries(t *testing.T) {
	artifact := &schema.UnitArtifact{
		ClusterData: map[int]schema.ClusterWaveform{
			9: {SpikeCount: 4, ValidDraws: 10, TotalDraws: 12, SNR: [][]float64{{1, -6}}},
			2: {SpikeCount: 1, ValidDraws: 5, TotalDraws: 12, SNR: [][]float64{{0.5}}},
		},
	}
	rows := clusterSummaries(schema.UnitKey{Session: "s", Recording: "3", Probe: "C"}, artifact)
	require.Len(t, rows, 2)
	assert.Equal(t, schema.ClusterSummaryRecord{Recording: "3", Probe: "C", ClusterID: 2, SpikeCount: 1, ValidDraws: 5, TotalDraws: 12, PeakSNR: 0.5}, rows[0])
	assert.Equal(t, int32(9), rows[1].ClusterID)
	assert.Equal(t, 6.0, rows[1].PeakSNR)
}

func optoConfig() *contract.Config {
	return &contract.Config{
		Conditions: map[string]string{"0": "short", "1": "short"},
		PSTHParams: map[string]schema.PSTHParams{
			"short": {Pretime: 0.5, WindowDur: 1, BinSize: 0.5},
		},
	}
}

func TestBuildOptoData(t *testing.T) {
	clusters := map[int]schema.ClusterWaveform{
		3: {SpikeTimes: []float64{9.6, 10.2, 19.7}},
	}
	rec := &recordingInputs{
		optoOn: []float64{10, 20},
		trials: &rawio.TrialMetadata{
			Conditions: []rawio.Condition{"0", "0", "1"},
			Levels:     []float64{1, 1, 1},
			Waveforms:  map[string][]float64{"0": {0, 1, 0}},
		},
	}

	opto, err := buildOptoData(optoConfig(), rec, clusters, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, opto, 2)

	stim0 := opto["stim_0"]
	assert.Equal(t, "short", stim0.Name)
	assert.Equal(t, []float64{0, 1, 0}, stim0.StimWaveform)
	require.Len(t, stim0.Levels, 1)
	p := stim0.Levels[0].Clusters[3]
	// Trials start at 9.5 and 19.5: bin 0 holds 9.6 and 19.7, bin 1 holds 10.2.
	assert.Equal(t, 2, p.Trials)
	assert.Equal(t, []float64{2, 1}, p.Rates)
	assert.Equal(t, []float64{0, 0.5}, p.BinStarts)

	// The third trial has no onset and is dropped.
	stim1 := opto["stim_1"]
	require.Len(t, stim1.Levels, 1)
	assert.Equal(t, 0, stim1.Levels[0].Clusters[3].Trials)
	assert.Nil(t, stim1.StimWaveform)
}

func TestBuildOptoDataWithoutTrials(t *testing.T) {
	opto, err := buildOptoData(optoConfig(), &recordingInputs{}, nil, zap.NewNop().Sugar())
	assert.NoError(t, err)
	assert.Nil(t, opto)
}

func TestBuildOptoDataUnknownCondition(t *testing.T) {
	rec := &recordingInputs{
		optoOn: []float64{1},
		trials: &rawio.TrialMetadata{Conditions: []rawio.Condition{"7"}, Levels: []float64{1}},
	}
	_, err := buildOptoData(optoConfig(), rec, nil, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, contract.ErrMissingInput)
}
