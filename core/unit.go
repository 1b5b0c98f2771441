package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/huangsam/spikewave/core/align"
	"github.com/huangsam/spikewave/core/waveform"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/outwriter"
	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/huangsam/spikewave/schema"
	"go.uber.org/zap"
)

// unitOutput is what one unit run hands back to the session runner.
type unitOutput struct {
	result    schema.UnitResult
	summaries []schema.ClusterSummaryRecord
	flagged   bool // skipped because of an existing flag
}

// unitRunner processes one recording/probe unit. It reads the flag store once and
// never writes to it; persisting the outcome is left to the session runner.
type unitRunner struct {
	cfg     *contract.Config
	flags   contract.FlagStore
	runUUID string
}

// run executes the whole unit pipeline and converts any error into a three-way result.
func (u *unitRunner) run(ctx context.Context, rec *recordingInputs, probe contract.ProbeConfig) unitOutput {
	start := time.Now()
	key := schema.UnitKey{Session: u.cfg.SessionName, Recording: rec.config.Name, Probe: probe.Label}
	logger := unitLogger(key)

	if u.flags != nil {
		flag, ok, err := u.flags.Get(key)
		if err != nil {
			logger.Warnw("flag lookup failed, processing unit anyway", "error", err)
		} else if ok && flag.Skip {
			logger.Infow("unit skipped by flag", "reason", flag.Reason)
			return unitOutput{
				result:  schema.UnitResult{Unit: key, State: schema.UnitSkipped, Reason: "flagged: " + flag.Reason, Duration: time.Since(start)},
				flagged: true,
			}
		}
	}

	artifact, err := u.process(ctx, rec, probe, logger)
	if err != nil {
		res := classify(ctx, key, err)
		res.Duration = time.Since(start)
		logger.Warnw("unit did not complete", "state", res.State, "reason", res.Reason)
		return unitOutput{result: res}
	}

	path := outwriter.ArtifactPath(u.cfg.OutputDir, key, u.cfg.ArtifactFormat)
	if err := ctx.Err(); err != nil {
		return unitOutput{result: classify(ctx, key, err)}
	}
	if err := outwriter.WriteArtifact(path, artifact, u.cfg.ArtifactFormat); err != nil {
		res := classify(ctx, key, err)
		res.Duration = time.Since(start)
		logger.Errorw("artifact write failed", "error", err)
		return unitOutput{result: res}
	}

	res := schema.UnitResult{
		Unit:         key,
		State:        schema.UnitCompleted,
		ArtifactPath: path,
		Clusters:     len(artifact.ClusterData),
		Duration:     time.Since(start),
	}
	logger.Infow("unit completed", "clusters", res.Clusters, "artifact", path, "duration", res.Duration)
	return unitOutput{result: res, summaries: clusterSummaries(key, artifact)}
}

// process loads the probe inputs, aligns the probe clock to the master, extracts waveforms
// and builds the opto PSTHs. Nothing is written here.
func (u *unitRunner) process(ctx context.Context, rec *recordingInputs, probe contract.ProbeConfig, logger *zap.SugaredLogger) (*schema.UnitArtifact, error) {
	if rec.loadErr != nil {
		return nil, rec.loadErr
	}
	cfg := u.cfg

	// 1. Clock alignment
	events, err := rawio.LoadEvents(probe.Events)
	if err != nil {
		return nil, fmt.Errorf("probe events: %w", err)
	}
	probeCodes, err := DecodeBarcodes(cfg, events, probe.Events.BarcodeLine)
	if err != nil {
		return nil, fmt.Errorf("probe barcodes: %w", err)
	}
	offset, err := align.Align(slices.Values(rec.master), slices.Values(probeCodes), cfg.AlignmentPolicy,
		align.WithTolerance(cfg.AlignmentTolerance))
	if err != nil {
		return nil, err
	}
	logger.Debugw("probe aligned", "offset", offset.Offset, "matched_pairs", offset.MatchedPairs, "drift", offset.Drift)

	// 2. Sorter output
	spikeTimes, err := rawio.LoadInt64(probe.SpikeTimes)
	if err != nil {
		return nil, fmt.Errorf("spike times: %w", err)
	}
	assignments, err := rawio.LoadInts(probe.SpikeClusters)
	if err != nil {
		return nil, fmt.Errorf("spike clusters: %w", err)
	}
	var channelMap []int
	if probe.ChannelMap != "" {
		if channelMap, err = rawio.LoadInts(probe.ChannelMap); err != nil {
			return nil, fmt.Errorf("channel map: %w", err)
		}
	}
	labels, err := rawio.ReadClusterLabels(probe.ClusterLabels)
	if err != nil {
		return nil, fmt.Errorf("cluster labels: %w", err)
	}
	good := rawio.GoodClusters(labels)
	if len(good) == 0 {
		return nil, fmt.Errorf("%w: no cluster labelled %s in %s", contract.ErrInsufficientData, schema.GoodLabel, probe.ClusterLabels)
	}
	spikes, warn := waveform.GroupSpikes(spikeTimes, assignments, good)
	if warn != nil {
		logger.Warnw("spike assignment mismatch", "warning", warn)
	}

	// 3. Waveforms
	signal, err := rawio.OpenSignal(probe.Raw, cfg.Extraction.NChannels)
	if err != nil {
		return nil, fmt.Errorf("raw signal: %w", err)
	}
	defer func() { _ = signal.Close() }()

	extractor := &waveform.Extractor{
		Params:  cfg.Extraction,
		Workers: cfg.ClusterWorkers,
		Seed:    cfg.Seed,
		Logger:  logger,
	}
	clusters, err := extractor.Extract(ctx, signal, spikes, channelMap,
		waveform.Timebase{SampleRate: cfg.ProbeSampleRate, Offset: offset.Offset})
	if err != nil {
		return nil, err
	}

	// 4. Opto responses
	opto, err := buildOptoData(cfg, rec, clusters, logger)
	if err != nil {
		return nil, err
	}

	return &schema.UnitArtifact{
		ExtractionParams: cfg.Extraction,
		ClusterData:      clusters,
		SessionInfo: schema.SessionInfo{
			SessionName:     cfg.SessionName,
			ProbeLabel:      probe.Label,
			RecordingNumber: rec.config.Name,
			RunUUID:         u.runUUID,
			ProbeSampleRate: cfg.ProbeSampleRate,
			Seed:            cfg.Seed,
		},
		GoodClusters: good,
		OptoData:     opto,
		Alignment:    offset,
	}, nil
}

// classify maps an error onto the three-way unit result. Cancellation always fails the unit.
func classify(ctx context.Context, key schema.UnitKey, err error) schema.UnitResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return schema.UnitResult{Unit: key, State: schema.UnitFailed, Reason: ctxErr.Error(), Err: ctxErr}
	}
	if contract.IsSkippable(err) {
		return schema.UnitResult{Unit: key, State: schema.UnitSkipped, Reason: err.Error(), Err: err}
	}
	return schema.UnitResult{Unit: key, State: schema.UnitFailed, Reason: err.Error(), Err: err}
}

// clusterSummaries condenses the artifact into run-store rows, one per cluster.
func clusterSummaries(key schema.UnitKey, artifact *schema.UnitArtifact) []schema.ClusterSummaryRecord {
	rows := make([]schema.ClusterSummaryRecord, 0, len(artifact.ClusterData))
	for _, id := range artifact.ClusterIDs() {
		cw := artifact.ClusterData[id]
		rows = append(rows, schema.ClusterSummaryRecord{
			Recording:  key.Recording,
			Probe:      key.Probe,
			ClusterID:  int32(id),
			SpikeCount: int32(cw.SpikeCount),
			ValidDraws: int32(cw.ValidDraws),
			TotalDraws: int32(cw.TotalDraws),
			PeakSNR:    cw.PeakSNR(),
		})
	}
	return rows
}
