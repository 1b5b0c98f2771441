package core

import (
	"maps"
	"slices"

	"github.com/huangsam/spikewave/core/psth"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"go.uber.org/zap"
)

// buildOptoData computes one trial-averaged PSTH per condition, level and cluster.
// Trial i starts at the i-th master opto onset shifted back by the condition's pretime.
// Surplus onsets are dropped and trials without an onset are left out, with a warning.
func buildOptoData(cfg *contract.Config, rec *recordingInputs, clusters map[int]schema.ClusterWaveform, logger *zap.SugaredLogger) (map[string]schema.OptoCondition, error) {
	if rec.trials == nil {
		return nil, nil
	}

	onsets := rec.optoOn
	if n := rec.trials.NumTrials(); len(onsets) != n {
		logger.Warnw("opto onset count does not match trial count", "onsets", len(onsets), "trials", n)
		onsets = onsets[:min(len(onsets), n)]
	}

	ids := slices.Sorted(maps.Keys(clusters))
	levels := rec.trials.UniqueLevels()

	out := make(map[string]schema.OptoCondition)
	for _, cond := range rec.trials.UniqueConditions() {
		params, name, err := cfg.ParamsForCondition(cond)
		if err != nil {
			return nil, err
		}

		oc := schema.OptoCondition{
			Condition:    cond,
			Name:         name,
			StimWaveform: rec.trials.Waveforms[cond],
			Params:       params,
		}
		for _, level := range levels {
			trials := rec.trials.Select(cond, level)
			if len(trials) == 0 {
				continue
			}
			starts := make([]float64, 0, len(trials))
			for _, i := range trials {
				if i < len(onsets) {
					starts = append(starts, onsets[i]-params.Pretime)
				}
			}

			lvl := schema.OptoLevel{Level: level, Clusters: make(map[int]schema.PSTH, len(ids))}
			for _, id := range ids {
				lvl.Clusters[id] = psth.BuildAveraged(clusters[id].SpikeTimes, starts, params.WindowDur, params.BinSize)
			}
			oc.Levels = append(oc.Levels, lvl)
		}
		out[schema.ConditionKey(cond)] = oc
	}
	return out, nil
}
