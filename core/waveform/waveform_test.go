package waveform

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/huangsam/spikewave/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams(nCh int) schema.ExtractionParams {
	return schema.ExtractionParams{
		NChannels:       nCh,
		TotWaveforms:    1,
		SamplesPerSpike: 10,
		PreSamples:      3,
		NBoots:          1,
	}
}

// impulseSignal is 1000 samples x 2 channels of zeros except sample 500 on channel 0.
func impulseSignal() *rawio.Signal {
	data := make([]int16, 1000*2)
	data[500*2] = 100
	return rawio.NewMemorySignal(data, 2)
}

func column(rows [][]float64, ch int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[ch]
	}
	return out
}

func TestExtractImpulse(t *testing.T) {
	ex := &Extractor{Params: smallParams(2), Workers: 2, Seed: 1}
	got, err := ex.Extract(context.Background(), impulseSignal(), map[int][]int64{4: {500}}, nil, Timebase{SampleRate: 30000, Offset: 2})
	require.NoError(t, err)
	require.Contains(t, got, 4)

	cw := got[4]
	assert.Equal(t, 4, cw.ClusterID)
	assert.Equal(t, []float64{0, 0, 0, 100, 0, 0, 0, 0, 0, 0}, column(cw.Waveform, 0))
	assert.Equal(t, make([]float64, 10), column(cw.Waveform, 1))
	assert.Equal(t, 1, cw.ValidDraws)
	assert.Equal(t, 1, cw.TotalDraws)
	assert.Equal(t, 1, cw.SpikeCount)
	require.Len(t, cw.SpikeTimes, 1)
	assert.InDelta(t, 500.0/30000+2, cw.SpikeTimes[0], 1e-12)

	// A single draw has no spread, so every SNR cell is zero.
	for _, row := range cw.SNR {
		for _, v := range row {
			assert.Zero(t, v)
		}
	}
}

func TestExtractBoundarySpikeOmitted(t *testing.T) {
	ex := &Extractor{Params: smallParams(2), Workers: 1, Seed: 1}
	got, err := ex.Extract(context.Background(), impulseSignal(), map[int][]int64{1: {2}, 2: {500}, 3: nil}, nil, Timebase{SampleRate: 30000})
	require.NoError(t, err)
	assert.NotContains(t, got, 1)
	assert.NotContains(t, got, 3)
	assert.Contains(t, got, 2)

	_, err = ExtractCluster(impulseSignal(), []int64{2}, nil, smallParams(2), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, contract.ErrEmptyCluster)
	assert.ErrorIs(t, err, contract.ErrBoundaryTruncation)

	_, err = ExtractCluster(impulseSignal(), nil, nil, smallParams(2), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, contract.ErrEmptyCluster)
}

func TestExtractClusterPartialBoundary(t *testing.T) {
	params := smallParams(2)
	params.TotWaveforms = 50
	params.NBoots = 4

	cw, err := ExtractCluster(impulseSignal(), []int64{2, 500}, nil, params, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	assert.Equal(t, 200, cw.TotalDraws)
	assert.Positive(t, cw.ValidDraws)
	assert.Less(t, cw.ValidDraws, cw.TotalDraws)
	// Only the in-range spike is ever averaged.
	assert.Equal(t, []float64{0, 0, 0, 100, 0, 0, 0, 0, 0, 0}, column(cw.Waveform, 0))
}

func TestExtractBaselineAndSNR(t *testing.T) {
	const nCh, nSamples = 3, 400
	rng := rand.New(rand.NewPCG(3, 4))
	data := make([]int16, nSamples*nCh)
	for i := range data {
		data[i] = int16(rng.IntN(200) - 100)
	}
	// Channel 2 is constant everywhere.
	for s := range nSamples {
		data[s*nCh+2] = 42
	}
	sig := rawio.NewMemorySignal(data, nCh)

	params := schema.ExtractionParams{NChannels: nCh, TotWaveforms: 20, SamplesPerSpike: 12, PreSamples: 4, NBoots: 5}
	spikes := []int64{50, 90, 130, 170, 210, 250, 290, 330}

	cw, err := ExtractCluster(sig, spikes, nil, params, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	for ch := range nCh {
		assert.Zero(t, cw.Waveform[0][ch], "baseline row channel %d", ch)
		assert.Zero(t, cw.SNR[0][ch], "baseline SNR channel %d", ch)
	}
	for _, row := range cw.SNR {
		assert.Zero(t, row[2])
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestExtractChannelRemap(t *testing.T) {
	const nCh = 3
	data := make([]int16, 100*nCh)
	for s := range 100 {
		for c := range nCh {
			data[s*nCh+c] = int16(s * (c + 1))
		}
	}
	sig := rawio.NewMemorySignal(data, nCh)
	params := schema.ExtractionParams{NChannels: nCh, TotWaveforms: 5, SamplesPerSpike: 8, PreSamples: 2, NBoots: 3}
	spikes := []int64{20, 40, 60}

	raw, err := ExtractCluster(sig, spikes, nil, params, rand.New(rand.NewPCG(5, 7)))
	require.NoError(t, err)
	channelMap := []int{2, 0, 1}
	remapped, err := ExtractCluster(sig, spikes, channelMap, params, rand.New(rand.NewPCG(5, 7)))
	require.NoError(t, err)

	for i, ch := range channelMap {
		assert.Equal(t, column(raw.Waveform, ch), column(remapped.Waveform, i))
		assert.Equal(t, column(raw.SNR, ch), column(remapped.SNR, i))
	}

	_, err = ExtractCluster(sig, spikes, []int{0, 3}, params, rand.New(rand.NewPCG(5, 7)))
	assert.Error(t, err)
}

func TestExtractReproducible(t *testing.T) {
	const nCh = 2
	rng := rand.New(rand.NewPCG(11, 12))
	data := make([]int16, 2000*nCh)
	for i := range data {
		data[i] = int16(rng.IntN(1000))
	}
	sig := rawio.NewMemorySignal(data, nCh)
	params := schema.ExtractionParams{NChannels: nCh, TotWaveforms: 10, SamplesPerSpike: 6, PreSamples: 2, NBoots: 4}
	spikes := map[int][]int64{
		1: {100, 300, 500, 700},
		2: {150, 350, 900},
		3: {1200, 1500, 1800},
	}
	tb := Timebase{SampleRate: 30000}

	serial := &Extractor{Params: params, Workers: 1, Seed: 99}
	parallel := &Extractor{Params: params, Workers: 3, Seed: 99}
	a, err := serial.Extract(context.Background(), sig, spikes, nil, tb)
	require.NoError(t, err)
	b, err := parallel.Extract(context.Background(), sig, spikes, nil, tb)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := &Extractor{Params: params, Workers: 3, Seed: 100}
	c, err := other.Extract(context.Background(), sig, spikes, nil, tb)
	require.NoError(t, err)
	assert.NotEqual(t, a[1].Waveform, c[1].Waveform)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &Extractor{Params: smallParams(2), Workers: 2, Seed: 1}
	got, err := ex.Extract(ctx, impulseSignal(), map[int][]int64{1: {500}}, nil, Timebase{SampleRate: 30000})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestExtractRejectsBadInput(t *testing.T) {
	ex := &Extractor{Params: smallParams(3), Seed: 1}
	_, err := ex.Extract(context.Background(), impulseSignal(), map[int][]int64{1: {500}}, nil, Timebase{SampleRate: 30000})
	assert.Error(t, err, "channel count mismatch")

	ex.Params = smallParams(2)
	_, err = ex.Extract(context.Background(), impulseSignal(), map[int][]int64{1: {500}}, nil, Timebase{})
	assert.Error(t, err, "zero sample rate")
}

func TestGroupSpikes(t *testing.T) {
	times := []int64{10, 20, 30, 40, 50}
	assignments := []int{1, 2, 1, 3, 2}

	grouped, err := GroupSpikes(times, assignments, []int{1, 2, 9})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, grouped[1])
	assert.Equal(t, []int64{20, 50}, grouped[2])
	assert.NotContains(t, grouped, 3)
	assert.Contains(t, grouped, 9)
	assert.Empty(t, grouped[9])

	grouped, err = GroupSpikes(times, assignments[:3], nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrInsufficientData)
	assert.Equal(t, []int64{10, 30}, grouped[1])
	assert.Equal(t, []int64{20}, grouped[2])
	assert.NotContains(t, grouped, 3)
}

func BenchmarkExtractCluster(b *testing.B) {
	const nCh = 32
	rng := rand.New(rand.NewPCG(1, 1))
	data := make([]int16, 20000*nCh)
	for i := range data {
		data[i] = int16(rng.IntN(400) - 200)
	}
	sig := rawio.NewMemorySignal(data, nCh)
	params := schema.ExtractionParams{NChannels: nCh, TotWaveforms: 50, SamplesPerSpike: 60, PreSamples: 20, NBoots: 10}
	spikes := make([]int64, 300)
	for i := range spikes {
		spikes[i] = int64(100 + i*60)
	}

	for b.Loop() {
		if _, err := ExtractCluster(sig, spikes, nil, params, rand.New(rand.NewPCG(1, 2))); err != nil {
			b.Fatal(err)
		}
	}
}
