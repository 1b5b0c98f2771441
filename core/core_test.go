package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/iocache"
	"github.com/huangsam/spikewave/internal/outwriter"
	"github.com/huangsam/spikewave/internal/simulate"
	"github.com/huangsam/spikewave/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// simSession generates a synthetic session and a config that runs it.
func simSession(t *testing.T, recordings int, probes ...string) (*simulate.Session, *contract.Config) {
	t.Helper()
	opts := simulate.DefaultOptions(t.TempDir())
	opts.Recordings = recordings
	opts.Probes = probes
	sess, err := simulate.Generate(opts)
	require.NoError(t, err)

	conditions, params := simulate.Conditions()
	cfg := &contract.Config{
		SessionName:        sess.Name,
		OutputDir:          t.TempDir(),
		ArtifactFormat:     schema.MsgpackArtifact,
		Workers:            2,
		ClusterWorkers:     2,
		Seed:               1,
		ProbeSampleRate:    opts.ProbeRate,
		Barcode:            opts.Barcode,
		AlignmentPolicy:    schema.MeanDeltaPolicy,
		AlignmentTolerance: 1,
		Extraction: schema.ExtractionParams{
			NChannels:       opts.NChannels,
			TotWaveforms:    40,
			SamplesPerSpike: 16,
			PreSamples:      4,
			NBoots:          5,
		},
		Conditions:  conditions,
		PSTHParams:  params,
		Recordings:  sess.Recordings,
		FlagBackend: schema.NoneBackend,
		Output:      schema.TextOut,
	}
	return sess, cfg
}

func unitKey(cfg *contract.Config, recording, probe string) schema.UnitKey {
	return schema.UnitKey{Session: cfg.SessionName, Recording: recording, Probe: probe}
}

func noFlags() *iocache.MockFlagStore {
	flags := &iocache.MockFlagStore{}
	flags.On("Get", mock.Anything).Return(schema.UnitFlag{}, false, nil)
	return flags
}

func storeManager(flags contract.FlagStore, runs contract.RunStore) *iocache.MockStoreManager {
	mgr := &iocache.MockStoreManager{}
	mgr.On("GetFlagStore").Return(flags)
	mgr.On("GetRunStore").Return(runs)
	return mgr
}

func TestSessionRunnerCompletesUnits(t *testing.T) {
	sess, cfg := simSession(t, 1, "A", "B")
	flags := noFlags()
	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", mock.AnythingOfType("string"), "sim", mock.Anything, mock.Anything).Return(int64(7), nil)
	runs.On("RecordUnitResult", int64(7), mock.Anything).Return(nil).Times(2)
	runs.On("RecordClusterSummaries", int64(7), mock.MatchedBy(func(rows []schema.ClusterSummaryRecord) bool {
		return len(rows) == 3
	})).Return(nil).Times(2)
	runs.On("EndRun", int64(7), mock.Anything, 2, 0, 0).Return(nil)

	runner := NewSessionRunner(cfg, storeManager(flags, runs))
	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, probe := range []string{"A", "B"} {
		res := results[i]
		key := unitKey(cfg, "1", probe)
		assert.Equal(t, key, res.Unit, "results keep manifest order")
		require.Equal(t, schema.UnitCompleted, res.State, res.Reason)
		assert.Equal(t, 3, res.Clusters)
		assert.Equal(t, outwriter.ArtifactPath(cfg.OutputDir, key, cfg.ArtifactFormat), res.ArtifactPath)

		artifact, err := outwriter.ReadArtifact(res.ArtifactPath)
		require.NoError(t, err)
		truth := sess.Truth["1/"+probe]

		assert.InDelta(t, truth.Offset, artifact.Alignment.Offset, 0.002)
		assert.Equal(t, 3, artifact.Alignment.MatchedPairs)
		assert.Equal(t, []int{0, 1, 2}, artifact.GoodClusters)
		assert.Equal(t, runner.RunUUID(), artifact.SessionInfo.RunUUID)
		assert.Equal(t, probe, artifact.SessionInfo.ProbeLabel)
		assert.Equal(t, "1", artifact.SessionInfo.RecordingNumber)

		require.Len(t, artifact.ClusterData, 3)
		for id, ch := range truth.Template {
			cw := artifact.ClusterData[id]
			require.Len(t, cw.Waveform, cfg.Extraction.SamplesPerSpike)
			assert.InDelta(t, -100, cw.Waveform[cfg.Extraction.PreSamples][ch], 15, "cluster %d trough", id)
			assert.Equal(t, cfg.Extraction.NBoots*cfg.Extraction.TotWaveforms, cw.TotalDraws)
			assert.Equal(t, cw.TotalDraws, cw.ValidDraws)
			for _, st := range cw.SpikeTimes {
				assert.GreaterOrEqual(t, st, truth.Offset)
			}
		}

		require.Len(t, artifact.OptoData, 2)
		short := artifact.OptoData["stim_0"]
		assert.Equal(t, "short", short.Name)
		assert.Equal(t, 0.05, short.Params.BinSize)
		assert.NotEmpty(t, short.StimWaveform)
		require.Len(t, short.Levels, 2)
		for _, lvl := range short.Levels {
			require.Len(t, lvl.Clusters, 3)
			assert.Equal(t, 2, lvl.Clusters[0].Trials)
			assert.Len(t, lvl.Clusters[0].Rates, 30)
		}
		assert.Equal(t, "long", artifact.OptoData["stim_1"].Name)
	}

	flags.AssertNotCalled(t, "Set", mock.Anything)
	runs.AssertExpectations(t)
}

func TestSessionRunnerFlaggedUnitIsSkipped(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	cfg.FlagOnFailure = true

	flags := &iocache.MockFlagStore{}
	flags.On("Get", unitKey(cfg, "1", "A")).Return(schema.UnitFlag{Skip: true, Reason: "probe broke"}, true, nil)
	flags.On("Get", unitKey(cfg, "1", "B")).Return(schema.UnitFlag{Skip: false, Reason: "cleared"}, true, nil)

	results, err := NewSessionRunner(cfg, storeManager(flags, nil)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, schema.UnitSkipped, results[0].State)
	assert.Equal(t, "flagged: probe broke", results[0].Reason)
	assert.Empty(t, results[0].ArtifactPath)
	_, statErr := os.Stat(outwriter.ArtifactPath(cfg.OutputDir, results[0].Unit, cfg.ArtifactFormat))
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	assert.Equal(t, schema.UnitCompleted, results[1].State)
	flags.AssertNotCalled(t, "Set", mock.Anything)
}

func TestSessionRunnerMissingInputSetsFlag(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	cfg.FlagOnFailure = true
	require.NoError(t, os.Remove(cfg.Recordings[0].Probes[1].SpikeTimes))

	keyB := unitKey(cfg, "1", "B")
	flags := noFlags()
	flags.On("Set", mock.MatchedBy(func(f schema.UnitFlag) bool {
		return f.UnitKey == keyB && f.Skip && strings.Contains(f.Reason, "missing input")
	})).Return(nil).Once()

	results, err := NewSessionRunner(cfg, storeManager(flags, nil)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schema.UnitCompleted, results[0].State)
	assert.Equal(t, schema.UnitSkipped, results[1].State)
	assert.ErrorIs(t, results[1].Err, contract.ErrMissingInput)
	assert.Contains(t, results[1].Reason, "spike times")
	flags.AssertExpectations(t)
}

func TestSessionRunnerAlignmentFailure(t *testing.T) {
	_, cfg := simSession(t, 2, "A")
	// Recording 2 carries different barcodes, so its events cannot align to recording 1.
	cfg.Recordings[0].Probes[0].Events = cfg.Recordings[1].Probes[0].Events

	results, err := NewSessionRunner(cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, schema.UnitFailed, results[0].State)
	assert.ErrorIs(t, results[0].Err, contract.ErrAlignmentFailure)
	assert.Equal(t, schema.UnitCompleted, results[1].State, "sibling units keep running")
}

func TestSessionRunnerRecordingLoadError(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	cfg.Recordings[0].Master.Samples = filepath.Join(t.TempDir(), "missing.npy")

	results, err := NewSessionRunner(cfg, nil).Run(context.Background())
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, schema.UnitSkipped, res.State)
		assert.Contains(t, res.Reason, "master events")
	}
}

func TestSessionRunnerCancelled(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	cfg.FlagOnFailure = true
	flags := &iocache.MockFlagStore{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewSessionRunner(cfg, storeManager(flags, nil)).Run(ctx)
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, schema.UnitFailed, res.State)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}

	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, cfg.SessionName))
	assert.ErrorIs(t, statErr, os.ErrNotExist, "cancelled units publish nothing")
	flags.AssertNotCalled(t, "Get", mock.Anything)
	flags.AssertNotCalled(t, "Set", mock.Anything)
}

func TestSessionRunnerNoSelection(t *testing.T) {
	_, cfg := simSession(t, 1, "A")
	cfg.ProbeFilter = []string{"Z"}

	_, err := NewSessionRunner(cfg, nil).Run(context.Background())
	assert.ErrorContains(t, err, "no units selected")
}

func TestSessionRunnerTrackingErrorsDoNotFail(t *testing.T) {
	_, cfg := simSession(t, 1, "A")
	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), assert.AnError)

	results, err := NewSessionRunner(cfg, storeManager(nil, runs)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.UnitCompleted, results[0].State)
	runs.AssertNotCalled(t, "RecordUnitResult", mock.Anything, mock.Anything)
	runs.AssertNotCalled(t, "EndRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunUnit(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	cfg.ArtifactFormat = schema.JSONArtifact

	res, err := RunUnit(context.Background(), cfg, nil, "1", "B")
	require.NoError(t, err)
	assert.Equal(t, schema.UnitCompleted, res.State)
	assert.True(t, strings.HasSuffix(res.ArtifactPath, "extracted_data_1_probeB.json"))

	_, err = RunUnit(context.Background(), cfg, nil, "1", "Z")
	assert.ErrorContains(t, err, "probe Z not found")
	_, err = RunUnit(context.Background(), cfg, nil, "9", "A")
	assert.ErrorContains(t, err, "recording 9 not found")
}

func TestExecuteRun(t *testing.T) {
	_, cfg := simSession(t, 1, "A")
	cfg.Output = schema.JSONOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "results.json")

	require.NoError(t, ExecuteRun(context.Background(), cfg, storeManager(noFlags(), nil)))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var results []schema.UnitResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, schema.UnitCompleted, results[0].State)
}

func TestBuildSessionStatus(t *testing.T) {
	_, cfg := simSession(t, 1, "A", "B")
	require.NoError(t, os.Remove(cfg.Recordings[0].Probes[1].ClusterLabels))

	flags := noFlags()
	rows, err := BuildSessionStatus(cfg, flags)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].RawSignal)
	assert.True(t, rows[0].SortingData)
	assert.False(t, rows[0].Artifact)
	assert.False(t, rows[1].SortingData)

	_, err = RunUnit(context.Background(), cfg, nil, "1", "A")
	require.NoError(t, err)

	flagged := &iocache.MockFlagStore{}
	flagged.On("Get", unitKey(cfg, "1", "A")).Return(schema.UnitFlag{}, false, nil)
	flagged.On("Get", unitKey(cfg, "1", "B")).Return(schema.UnitFlag{Skip: true, Reason: "no labels"}, true, nil)
	rows, err = BuildSessionStatus(cfg, flagged)
	require.NoError(t, err)
	assert.True(t, rows[0].Artifact)
	assert.True(t, rows[1].Skip)
	assert.Equal(t, "no labels", rows[1].FlagReason)

	broken := &iocache.MockFlagStore{}
	broken.On("Get", mock.Anything).Return(schema.UnitFlag{}, false, assert.AnError)
	_, err = BuildSessionStatus(cfg, broken)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestExecuteSummary(t *testing.T) {
	_, cfg := simSession(t, 1, "A")
	cfg.Output = schema.CSVOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "status.csv")

	require.NoError(t, ExecuteSummary(context.Background(), cfg, storeManager(noFlags(), nil)))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sim,1,A,true,true,false,false,")
}

func TestDecodeStream(t *testing.T) {
	sess, cfg := simSession(t, 1, "A")
	rec := cfg.Recordings[0]

	master, err := DecodeStream(cfg, rec.Master, rec.Master.BarcodeLine)
	require.NoError(t, err)
	probe, err := DecodeStream(cfg, rec.Probes[0].Events, rec.Probes[0].Events.BarcodeLine)
	require.NoError(t, err)

	require.Len(t, master, 3)
	require.Len(t, probe, len(master))
	for i := range master {
		assert.Equal(t, master[i].Code, probe[i].Code)
		assert.InDelta(t, sess.Truth["1/A"].Offset, master[i].Start-probe[i].Start, 0.002)
	}

	_, err = DecodeStream(cfg, contract.StreamConfig{}, 1)
	assert.ErrorIs(t, err, contract.ErrMissingInput)
}
