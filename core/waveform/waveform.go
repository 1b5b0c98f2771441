// Package waveform extracts bootstrapped mean spike waveforms and their per-sample SNR
// from a raw multi-channel recording.
package waveform

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Timebase converts probe sample indices to master seconds.
type Timebase struct {
	SampleRate float64
	Offset     float64
}

// Seconds maps a sample index to master time.
func (tb Timebase) Seconds(sample int64) float64 {
	return float64(sample)/tb.SampleRate + tb.Offset
}

// Extractor runs the bootstrap over every cluster of a probe.
type Extractor struct {
	Params  schema.ExtractionParams
	Workers int
	Seed    uint64
	Logger  *zap.SugaredLogger
}

type clusterJob struct {
	id      int
	samples []int64
}

type clusterOutcome struct {
	id  int
	cw  schema.ClusterWaveform
	err error
}

// Extract computes one ClusterWaveform per cluster. Clusters without spikes, or whose every spike
// window falls outside the recording, are left out of the result. Each cluster draws from its own
// PCG source seeded by (Seed, cluster id), so results do not depend on worker scheduling.
func (e *Extractor) Extract(ctx context.Context, signal contract.RawSignal, spikes map[int][]int64, channelMap []int, tb Timebase) (map[int]schema.ClusterWaveform, error) {
	if err := e.Params.Validate(); err != nil {
		return nil, err
	}
	if tb.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be greater than 0 (received %g)", tb.SampleRate)
	}
	if err := checkChannelMap(channelMap, signal.NumChannels()); err != nil {
		return nil, err
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	workers := max(e.Workers, 1)

	ids := slices.Sorted(maps.Keys(spikes))
	jobCh := make(chan clusterJob, len(ids))
	outCh := make(chan clusterOutcome, len(ids))
	var wg sync.WaitGroup

	for range workers {
		wg.Go(func() {
			for job := range jobCh {
				if err := ctx.Err(); err != nil {
					outCh <- clusterOutcome{id: job.id, err: err}
					continue
				}
				rng := rand.New(rand.NewPCG(e.Seed, uint64(job.id)))
				cw, err := ExtractCluster(signal, job.samples, channelMap, e.Params, rng)
				if err == nil {
					cw.ClusterID = job.id
					cw.SpikeTimes = make([]float64, len(job.samples))
					for i, s := range job.samples {
						cw.SpikeTimes[i] = tb.Seconds(s)
					}
				}
				outCh <- clusterOutcome{id: job.id, cw: cw, err: err}
			}
		})
	}

	for _, id := range ids {
		jobCh <- clusterJob{id: id, samples: spikes[id]}
	}
	close(jobCh)
	wg.Wait()
	close(outCh)

	results := make(map[int]schema.ClusterWaveform, len(ids))
	var failures []error
	for out := range outCh {
		switch {
		case out.err == nil:
			results[out.id] = out.cw
		case errors.Is(out.err, contract.ErrEmptyCluster):
			logger.Debugw("cluster omitted", "cluster", out.id, "reason", out.err)
		default:
			failures = append(failures, fmt.Errorf("cluster %d: %w", out.id, out.err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b error) int { return cmp.Compare(a.Error(), b.Error()) })
		return nil, errors.Join(failures...)
	}
	return results, nil
}

// ExtractCluster bootstraps the mean waveform of one cluster using the given random source.
// Waveform and SNR are indexed [sample][exported channel]; a nil channelMap exports raw order.
// Draws whose window leaves [0, NumSamples) are excluded and do not count toward ValidDraws.
func ExtractCluster(signal contract.RawSignal, samples []int64, channelMap []int, params schema.ExtractionParams, rng *rand.Rand) (schema.ClusterWaveform, error) {
	if len(samples) == 0 {
		return schema.ClusterWaveform{}, fmt.Errorf("%w: no spikes", contract.ErrEmptyCluster)
	}
	if err := params.Validate(); err != nil {
		return schema.ClusterWaveform{}, err
	}
	nCh := signal.NumChannels()
	if nCh != params.NChannels {
		return schema.ClusterWaveform{}, fmt.Errorf("signal has %d channels, expected %d", nCh, params.NChannels)
	}
	if err := checkChannelMap(channelMap, nCh); err != nil {
		return schema.ClusterWaveform{}, err
	}

	sps, pre := params.SamplesPerSpike, params.PreSamples
	numSamples := signal.NumSamples()
	inRange := func(peak int64) bool {
		start := peak - int64(pre)
		return start >= 0 && start+int64(sps) <= numSamples
	}
	if !slices.ContainsFunc(samples, inRange) {
		return schema.ClusterWaveform{}, fmt.Errorf("%w: all %d spike windows fall outside the recording (%w)",
			contract.ErrEmptyCluster, len(samples), contract.ErrBoundaryTruncation)
	}

	cells := sps * nCh
	windows := make([]int16, params.TotWaveforms*cells)
	column := make([]float64, params.TotWaveforms)
	meanAcc := make([]float64, cells)
	snrAcc := make([]float64, cells)
	roundMean := make([]float64, cells)
	roundSNR := make([]float64, cells)

	validDraws := 0
	for range params.NBoots {
		valid := 0
		for range params.TotWaveforms {
			peak := samples[rng.IntN(len(samples))]
			if !inRange(peak) {
				continue
			}
			start := peak - int64(pre)
			dst := windows[valid*cells : (valid+1)*cells]
			if err := signal.ReadWindow(start, start+int64(sps), dst); err != nil {
				return schema.ClusterWaveform{}, fmt.Errorf("read window at sample %d: %w", start, err)
			}
			valid++
		}
		validDraws += valid
		if valid == 0 {
			// Counts as an all-zero round.
			continue
		}

		for cell := range cells {
			ch := cell % nCh
			col := column[:valid]
			for k := range valid {
				w := windows[k*cells : (k+1)*cells]
				col[k] = float64(w[cell]) - float64(w[ch])
			}
			mean, variance := stat.PopMeanVariance(col, nil)
			roundMean[cell] = mean
			roundSNR[cell] = 0
			if std := math.Sqrt(variance); std > 0 {
				roundSNR[cell] = mean / std
			}
		}
		floats.Add(meanAcc, roundMean)
		floats.Add(snrAcc, roundSNR)
	}

	floats.Scale(1/float64(params.NBoots), meanAcc)
	floats.Scale(1/float64(params.NBoots), snrAcc)

	return schema.ClusterWaveform{
		Waveform:   exportChannels(meanAcc, sps, nCh, channelMap),
		SNR:        exportChannels(snrAcc, sps, nCh, channelMap),
		SpikeCount: len(samples),
		ValidDraws: validDraws,
		TotalDraws: params.NBoots * params.TotWaveforms,
	}, nil
}

// exportChannels reshapes a flat [sample*nCh + channel] buffer into rows whose column i
// holds raw channel channelMap[i].
func exportChannels(flat []float64, sps, nCh int, channelMap []int) [][]float64 {
	width := nCh
	if channelMap != nil {
		width = len(channelMap)
	}
	out := make([][]float64, sps)
	for t := range sps {
		row := make([]float64, width)
		raw := flat[t*nCh : (t+1)*nCh]
		if channelMap == nil {
			copy(row, raw)
		} else {
			for i, ch := range channelMap {
				row[i] = raw[ch]
			}
		}
		out[t] = row
	}
	return out
}

func checkChannelMap(channelMap []int, nCh int) error {
	for i, ch := range channelMap {
		if ch < 0 || ch >= nCh {
			return fmt.Errorf("channel map entry %d is %d, outside [0, %d)", i, ch, nCh)
		}
	}
	return nil
}

// GroupSpikes groups spike sample indices by cluster assignment, keeping only clusters in keep
// (all clusters when keep is nil). When the two vectors disagree in length the longer one is
// truncated and a warning wrapping ErrInsufficientData is returned alongside a usable result.
func GroupSpikes(spikeTimes []int64, assignments []int, keep []int) (map[int][]int64, error) {
	var warn error
	n := len(spikeTimes)
	if len(assignments) != n {
		n = min(len(spikeTimes), len(assignments))
		warn = fmt.Errorf("%w: %d spike times vs %d cluster assignments, truncated to %d",
			contract.ErrInsufficientData, len(spikeTimes), len(assignments), n)
	}

	var keepSet map[int]struct{}
	if keep != nil {
		keepSet = make(map[int]struct{}, len(keep))
		for _, id := range keep {
			keepSet[id] = struct{}{}
		}
	}

	grouped := make(map[int][]int64)
	for i := range n {
		id := assignments[i]
		if keepSet != nil {
			if _, ok := keepSet[id]; !ok {
				continue
			}
		}
		grouped[id] = append(grouped[id], spikeTimes[i])
	}
	for _, id := range keep {
		if _, ok := grouped[id]; !ok {
			grouped[id] = nil
		}
	}
	return grouped, warn
}
