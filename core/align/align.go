// Package align estimates the clock offset between a probe stream and the master stream
// from the barcodes both of them recorded.
package align

import (
	"fmt"
	"iter"
	"math"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"gonum.org/v1/gonum/stat"
)

// DefaultTolerance bounds how far a matched delta may stray from the first-match seed.
const DefaultTolerance = 1.0

// Option tweaks the aligner.
type Option func(*aligner)

// WithTolerance sets the seconds a matched pair may deviate from the seed delta under the mean policy.
func WithTolerance(tol float64) Option {
	return func(a *aligner) {
		if tol > 0 {
			a.tolerance = tol
		}
	}
}

type aligner struct {
	tolerance float64
}

// Align computes the offset such that master = probe + Offset.
//
// FirstMatchPolicy uses the earliest probe barcode whose code the master also carries, paired with
// the earliest master occurrence of that code. MeanDeltaPolicy seeds with the same delta, pairs every
// shared probe code with its nearest master occurrence and averages the deltas within tolerance.
func Align(master, probe iter.Seq[schema.Barcode], policy schema.AlignmentPolicy, opts ...Option) (schema.ClockOffset, error) {
	a := &aligner{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(a)
	}

	// Index master starts by code, keeping occurrence order.
	masterStarts := make(map[uint64][]float64)
	for bc := range master {
		masterStarts[bc.Code] = append(masterStarts[bc.Code], bc.Start)
	}

	var probes []schema.Barcode
	for bc := range probe {
		probes = append(probes, bc)
	}

	seedIdx := -1
	for i, bc := range probes {
		if _, ok := masterStarts[bc.Code]; ok {
			seedIdx = i
			break
		}
	}
	if seedIdx < 0 {
		return schema.ClockOffset{}, fmt.Errorf("%w: %d master codes and %d probe codes share no value",
			contract.ErrAlignmentFailure, len(masterStarts), len(probes))
	}

	seed := probes[seedIdx]
	seedDelta := masterStarts[seed.Code][0] - seed.Start
	result := schema.ClockOffset{
		Offset:       seedDelta,
		Policy:       policy,
		MatchedPairs: 1,
		FirstCode:    seed.Code,
	}

	switch policy {
	case schema.FirstMatchPolicy:
		return result, nil
	case schema.MeanDeltaPolicy:
	default:
		return schema.ClockOffset{}, fmt.Errorf("unknown alignment policy %q", policy)
	}

	var probeTimes, masterTimes []float64
	var sum float64
	for _, bc := range probes[seedIdx:] {
		starts, ok := masterStarts[bc.Code]
		if !ok {
			continue
		}
		m := nearest(starts, bc.Start+seedDelta)
		delta := m - bc.Start
		if math.Abs(delta-seedDelta) > a.tolerance {
			continue
		}
		probeTimes = append(probeTimes, bc.Start)
		masterTimes = append(masterTimes, m)
		sum += delta
	}

	// The seed pair always survives, so there is at least one delta.
	result.MatchedPairs = len(probeTimes)
	result.Offset = sum / float64(len(probeTimes))

	if len(probeTimes) >= 2 {
		alpha, beta := stat.LinearRegression(probeTimes, masterTimes, nil, false)
		if !math.IsNaN(beta) {
			result.Drift = beta - 1
			result.Intercept = alpha
		}
	}
	return result, nil
}

// nearest returns the value in starts closest to target, preferring the earliest on ties.
func nearest(starts []float64, target float64) float64 {
	best := starts[0]
	for _, s := range starts[1:] {
		if math.Abs(s-target) < math.Abs(best-target) {
			best = s
		}
	}
	return best
}
