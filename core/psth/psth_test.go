package psth

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumBins(t *testing.T) {
	tests := []struct {
		window, bin float64
		expected    int
	}{
		{1, 0.25, 4},
		{1.1, 0.25, 5},
		{0.5, 0.01, 50},
		{0.3, 0.1, 3},
		{0, 0.1, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NumBins(tt.window, tt.bin), "window=%g bin=%g", tt.window, tt.bin)
	}
}

func TestBuildPerTrial(t *testing.T) {
	spikes := []float64{10.0, 10.1, 10.25, 10.9, 20.5, 20.5, 30}
	starts := []float64{10, 20}

	rows, bins := Build(spikes, starts, 1, 0.25, false)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75}, bins)
	require.Len(t, rows, 2)
	// 10.25 belongs to the second bin since bins are half-open.
	assert.Equal(t, []float64{8, 4, 0, 4}, rows[0])
	assert.Equal(t, []float64{0, 0, 8, 0}, rows[1])
}

func TestBuildAveraged(t *testing.T) {
	spikes := []float64{10.0, 10.1, 10.25, 10.9, 20.5, 20.5, 30}
	starts := []float64{10, 20}

	rows, bins := Build(spikes, starts, 1, 0.25, true)
	require.Len(t, rows, 1)
	assert.Len(t, bins, 4)
	assert.Equal(t, []float64{4, 2, 4, 2}, rows[0])

	p := BuildAveraged(spikes, starts, 1, 0.25)
	assert.Equal(t, rows[0], p.Rates)
	assert.Equal(t, bins, p.BinStarts)
	assert.Equal(t, 2, p.Trials)
}

func TestBuildNoTrials(t *testing.T) {
	rows, bins := Build([]float64{1, 2}, nil, 1, 0.25, true)
	require.Len(t, rows, 1)
	assert.Equal(t, []float64{0, 0, 0, 0}, rows[0])
	assert.Len(t, bins, 4)

	rows, bins = Build([]float64{1, 2}, nil, 1, 0.25, false)
	assert.Empty(t, rows)
	assert.Len(t, bins, 4)
}

func TestBuildDeterministicAndPure(t *testing.T) {
	spikes := []float64{3.3, 1.1, 2.2, 1.15, 0.05}
	original := slices.Clone(spikes)
	starts := []float64{0, 1, 2, 3}

	a, binsA := Build(spikes, starts, 0.5, 0.1, true)
	b, binsB := Build(spikes, starts, 0.5, 0.1, true)
	assert.Equal(t, a, b)
	assert.Equal(t, binsA, binsB)
	assert.Len(t, binsA, 5)
	assert.Equal(t, original, spikes)
}

func BenchmarkBuild(b *testing.B) {
	spikes := make([]float64, 20000)
	for i := range spikes {
		spikes[i] = float64(i) * 0.013
	}
	starts := make([]float64, 200)
	for i := range starts {
		starts[i] = float64(i) * 1.2
	}

	for b.Loop() {
		Build(spikes, starts, 1, 0.01, true)
	}
}
