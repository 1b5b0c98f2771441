// Package psth builds peri-stimulus time histograms.
package psth

import (
	"math"
	"slices"

	"github.com/huangsam/spikewave/schema"
	"gonum.org/v1/gonum/floats"
)

// binEpsilon keeps exact multiples such as 0.5/0.01 from gaining a spurious bin.
const binEpsilon = 1e-9

// NumBins returns ceil(windowDur/binSize).
func NumBins(windowDur, binSize float64) int {
	if windowDur <= 0 || binSize <= 0 {
		return 0
	}
	return int(math.Ceil(windowDur/binSize - binEpsilon))
}

// Build counts spikes in half-open bins [start+b, start+b+binSize) after every trial start and
// converts counts to rates. With average set the result holds one row, the mean over trials;
// otherwise one row per trial. No trials yields one zero row when averaging and no rows otherwise.
// The returned bin starts are 0, binSize, 2*binSize and so on. spikes is left untouched.
func Build(spikes, trialStarts []float64, windowDur, binSize float64, average bool) ([][]float64, []float64) {
	n := NumBins(windowDur, binSize)
	binStarts := make([]float64, n)
	for i := range binStarts {
		binStarts[i] = float64(i) * binSize
	}

	sorted := slices.Clone(spikes)
	slices.Sort(sorted)

	counts := make([][]float64, len(trialStarts))
	for trial, start := range trialStarts {
		row := make([]float64, n)
		for b := range n {
			lo := start + binStarts[b]
			hi := lo + binSize
			first, _ := slices.BinarySearch(sorted, lo)
			last, _ := slices.BinarySearch(sorted, hi)
			row[b] = float64(last-first) / binSize
		}
		counts[trial] = row
	}

	if !average {
		return counts, binStarts
	}

	mean := make([]float64, n)
	if len(counts) > 0 {
		for _, row := range counts {
			floats.Add(mean, row)
		}
		floats.Scale(1/float64(len(counts)), mean)
	}
	return [][]float64{mean}, binStarts
}

// BuildAveraged returns the trial-averaged histogram as a typed record.
func BuildAveraged(spikes, trialStarts []float64, windowDur, binSize float64) schema.PSTH {
	rows, binStarts := Build(spikes, trialStarts, windowDur, binSize, true)
	return schema.PSTH{Rates: rows[0], BinStarts: binStarts, Trials: len(trialStarts)}
}
