package simulate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.Probes = []string{"A", "B"}
	sess, err := Generate(opts)
	require.NoError(t, err)

	require.Len(t, sess.Recordings, 1)
	rec := sess.Recordings[0]
	assert.Equal(t, "1", rec.Name)
	require.Len(t, rec.Probes, 2)
	assert.Equal(t, 1.5, sess.Truth["1/A"].Offset)
	assert.Equal(t, 1.75, sess.Truth["1/B"].Offset)
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, sess.Truth["1/A"].Template)

	probe := rec.Probes[0]
	info, err := os.Stat(probe.Raw)
	require.NoError(t, err)
	assert.Equal(t, int64(opts.Duration*opts.ProbeRate)*int64(opts.NChannels)*2, info.Size())

	times, err := rawio.LoadInt64(probe.SpikeTimes)
	require.NoError(t, err)
	clusters, err := rawio.LoadInts(probe.SpikeClusters)
	require.NoError(t, err)
	assert.Len(t, times, (opts.GoodClusters+1)*opts.SpikesPerCluster)
	assert.Len(t, clusters, len(times))
	assert.IsNonDecreasing(t, times)

	labels, err := rawio.ReadClusterLabels(probe.ClusterLabels)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, rawio.GoodClusters(labels))

	trials, err := rawio.LoadTrials(rec.Trials)
	require.NoError(t, err)
	assert.Equal(t, opts.Trials, trials.NumTrials())
	assert.Equal(t, []string{"0", "1"}, trials.UniqueConditions())
	assert.Equal(t, []float64{1, 2}, trials.UniqueLevels())

	master, err := rawio.LoadEvents(rec.Master)
	require.NoError(t, err)
	onsets, _ := master.Edges(rec.Master.OptoLine)
	assert.Len(t, onsets, opts.Trials)
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(DefaultOptions(t.TempDir()))
	require.NoError(t, err)
	b, err := Generate(DefaultOptions(t.TempDir()))
	require.NoError(t, err)

	rawA, err := os.ReadFile(a.Recordings[0].Probes[0].Raw)
	require.NoError(t, err)
	rawB, err := os.ReadFile(b.Recordings[0].Probes[0].Raw)
	require.NoError(t, err)
	assert.Equal(t, rawA, rawB)
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.Probes = nil
	_, err := Generate(opts)
	assert.Error(t, err)

	opts = DefaultOptions(t.TempDir())
	opts.BarcodeInterval = 5
	_, err = Generate(opts)
	assert.ErrorContains(t, err, "too short")

	opts = DefaultOptions(t.TempDir())
	opts.Duration = 10
	_, err = Generate(opts)
	assert.ErrorContains(t, err, "fewer than two barcodes")
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	sess, err := Generate(DefaultOptions(dir))
	require.NoError(t, err)

	path := filepath.Join(dir, "spikewave.yaml")
	require.NoError(t, sess.WriteConfig(path, filepath.Join(dir, "out")))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, "sim", v.GetString("session"))
	assert.Equal(t, 4, v.GetInt("extraction.n-channels"))
	assert.Equal(t, "short", v.GetString("psth.conditions.0"))
	assert.Equal(t, 0.05, v.GetFloat64("psth.parameters.short.binsize"))

	recs, ok := v.Get("recordings").([]any)
	require.True(t, ok)
	assert.Len(t, recs, 1)
}

func TestConditionsAreCopies(t *testing.T) {
	names, params := Conditions()
	names["0"] = "changed"
	delete(params, "short")

	again, params2 := Conditions()
	assert.Equal(t, "short", again["0"])
	assert.Contains(t, params2, "short")
}
