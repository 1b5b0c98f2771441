package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/log"
	"github.com/huangsam/spikewave/schema"
	"go.uber.org/zap"
)

// unitJob pairs a probe with the shared inputs of its recording.
type unitJob struct {
	rec   *recordingInputs
	probe contract.ProbeConfig
}

// SessionRunner processes every selected unit of a session on a bounded worker pool.
// It owns the side effects of a run: flag persistence and run tracking.
type SessionRunner struct {
	cfg     *contract.Config
	mgr     contract.StoreManager
	runUUID string
}

// NewSessionRunner creates a runner with a fresh run UUID.
func NewSessionRunner(cfg *contract.Config, mgr contract.StoreManager) *SessionRunner {
	return &SessionRunner{cfg: cfg, mgr: mgr, runUUID: uuid.NewString()}
}

// RunUUID returns the id stamped into every artifact of this run.
func (r *SessionRunner) RunUUID() string {
	return r.runUUID
}

// Run processes the selected units and returns one result per unit in manifest order.
// Unit failures never abort sibling units; only an empty selection is an error.
func (r *SessionRunner) Run(ctx context.Context) ([]schema.UnitResult, error) {
	cfg := r.cfg
	logger := log.With("session", cfg.SessionName, "run_uuid", r.runUUID)

	// --- 1. Select units and load shared recording inputs ---
	var jobs []unitJob
	for _, rec := range cfg.Recordings {
		var selected []contract.ProbeConfig
		for _, p := range rec.Probes {
			if cfg.Selected(rec.Name, p.Label) {
				selected = append(selected, p)
			}
		}
		if len(selected) == 0 {
			continue
		}
		in := loadRecording(cfg, rec, logger.With("recording", rec.Name))
		if in.loadErr != nil {
			logger.Warnw("recording inputs unavailable", "recording", rec.Name, "error", in.loadErr)
		}
		for _, p := range selected {
			jobs = append(jobs, unitJob{rec: in, probe: p})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no units selected in session %s", cfg.SessionName)
	}

	// --- 2. Begin run tracking (if configured) ---
	startTime := time.Now()
	runStore := r.runStore()
	if runStore != nil {
		runID, err := runStore.BeginRun(r.runUUID, cfg.SessionName, startTime, configParams(cfg, len(jobs)))
		if err != nil {
			contract.LogWarn("Run tracking initialization failed", err)
		} else if runID > 0 {
			ctx = withRunID(ctx, runID)
		}
	}

	// --- 3. Process units ---
	results := r.runUnits(ctx, jobs)

	// --- 4. End run tracking ---
	if runID, ok := getRunID(ctx); ok && runStore != nil {
		completed, skipped, failed := countStates(results)
		if err := runStore.EndRun(runID, time.Now(), completed, skipped, failed); err != nil {
			contract.LogWarn("Failed to finalize run tracking", err)
		}
	}

	logger.Infow("session finished", "units", len(results), "duration", time.Since(startTime))
	return results, nil
}

// RunUnit processes a single recording/probe unit outside of run tracking.
// The flag store is still consulted and updated.
func (r *SessionRunner) RunUnit(ctx context.Context, recording, probe string) (schema.UnitResult, error) {
	for _, rec := range r.cfg.Recordings {
		if rec.Name != recording {
			continue
		}
		for _, p := range rec.Probes {
			if p.Label != probe {
				continue
			}
			in := loadRecording(r.cfg, rec, log.With("session", r.cfg.SessionName, "recording", rec.Name))
			flags := r.flagStore()
			runner := &unitRunner{cfg: r.cfg, flags: flags, runUUID: r.runUUID}
			out := runner.run(ctx, in, p)
			r.persist(ctx, flags, out)
			return out.result, nil
		}
		return schema.UnitResult{}, fmt.Errorf("probe %s not found in recording %s", probe, recording)
	}
	return schema.UnitResult{}, fmt.Errorf("recording %s not found in session %s", recording, r.cfg.SessionName)
}

// runUnits fans units out to cfg.Workers goroutines. Each worker also persists its own
// unit's outcome, so the flag store sees at most one write per unit.
func (r *SessionRunner) runUnits(ctx context.Context, jobs []unitJob) []schema.UnitResult {
	flags := r.flagStore()
	runner := &unitRunner{cfg: r.cfg, flags: flags, runUUID: r.runUUID}

	type indexed struct {
		idx int
		res schema.UnitResult
	}
	jobCh := make(chan int, len(jobs))
	resultCh := make(chan indexed, len(jobs))
	var wg sync.WaitGroup

	for range max(r.cfg.Workers, 1) {
		wg.Go(func() {
			for i := range jobCh {
				job := jobs[i]
				var out unitOutput
				if err := ctx.Err(); err != nil {
					key := schema.UnitKey{Session: r.cfg.SessionName, Recording: job.rec.config.Name, Probe: job.probe.Label}
					out = unitOutput{result: classify(ctx, key, err)}
				} else {
					out = runner.run(ctx, job.rec, job.probe)
				}
				r.persist(ctx, flags, out)
				resultCh <- indexed{idx: i, res: out.result}
			}
		})
	}

	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)
	wg.Wait()
	close(resultCh)

	results := make([]schema.UnitResult, len(jobs))
	for out := range resultCh {
		results[out.idx] = out.res
	}
	return results
}

// persist writes the flag of a failed or skip-worthy unit and records the outcome in the run store.
// Cancelled units and units already skipped by a flag leave the flag store untouched.
func (r *SessionRunner) persist(ctx context.Context, flags contract.FlagStore, out unitOutput) {
	res := out.result
	if flags != nil && r.cfg.FlagOnFailure && res.State != schema.UnitCompleted && !out.flagged && ctx.Err() == nil {
		flag := schema.UnitFlag{UnitKey: res.Unit, Skip: true, Reason: res.Reason, UpdatedAt: time.Now()}
		if err := flags.Set(flag); err != nil {
			unitLogger(res.Unit).Warnw("failed to persist unit flag", "error", err)
		}
	}

	runID, ok := getRunID(ctx)
	runStore := r.runStore()
	if !ok || runStore == nil {
		return
	}
	if err := runStore.RecordUnitResult(runID, res); err != nil {
		logTrackingError("RecordUnitResult", res.Unit, err)
	}
	if len(out.summaries) > 0 {
		if err := runStore.RecordClusterSummaries(runID, out.summaries); err != nil {
			logTrackingError("RecordClusterSummaries", res.Unit, err)
		}
	}
}

func (r *SessionRunner) flagStore() contract.FlagStore {
	if r.mgr == nil {
		return nil
	}
	return r.mgr.GetFlagStore()
}

func (r *SessionRunner) runStore() contract.RunStore {
	if r.mgr == nil {
		return nil
	}
	return r.mgr.GetRunStore()
}

// configParams is the subset of the config stored with a tracked run.
func configParams(cfg *contract.Config, units int) map[string]any {
	return map[string]any{
		"output_dir":          cfg.OutputDir,
		"artifact_format":     string(cfg.ArtifactFormat),
		"workers":             cfg.Workers,
		"cluster_workers":     cfg.ClusterWorkers,
		"seed":                cfg.Seed,
		"probe_sample_rate":   cfg.ProbeSampleRate,
		"alignment_policy":    string(cfg.AlignmentPolicy),
		"alignment_tolerance": cfg.AlignmentTolerance,
		"extraction":          cfg.Extraction,
		"units":               units,
	}
}

func countStates(results []schema.UnitResult) (completed, skipped, failed int) {
	for _, res := range results {
		switch res.State {
		case schema.UnitCompleted:
			completed++
		case schema.UnitSkipped:
			skipped++
		default:
			failed++
		}
	}
	return completed, skipped, failed
}

// unitLogger returns a logger carrying the unit key fields.
func unitLogger(key schema.UnitKey) *zap.SugaredLogger {
	return log.With("session", key.Session, "recording", key.Recording, "probe", key.Probe)
}

// logTrackingError logs run tracking errors to stderr without disrupting the run.
func logTrackingError(operation string, unit schema.UnitKey, err error) {
	contract.LogWarn(fmt.Sprintf("Run tracking failed for %s on %s", operation, unit), err)
}
