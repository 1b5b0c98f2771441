// Package barcode decodes the digital barcode pulse trains shared by the master and probe streams.
package barcode

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
)

// Default barcode timing used by the acquisition rigs.
const (
	DefaultBitDuration     = 0.03
	DefaultInterBarcodeGap = 10.0
	DefaultBits            = 32
)

// Option tweaks the decoder.
type Option func(*decoder)

// WithBits sets the number of data bits following the start bit.
func WithBits(n int) Option {
	return func(d *decoder) {
		d.nbits = n
	}
}

type decoder struct {
	bitDuration float64
	gap         float64
	nbits       int
	edges       []schema.EdgeEvent
}

// Decode turns rising and falling edge times (seconds, stream clock) into an ordered sequence
// of barcodes. The returned sequence is lazy and restartable: each range re-scans the edges.
//
// Edges closer than interBarcodeGap form one word. Every interval between two edges of a word
// holds round(L/bitDuration) bits at the level set by the earlier edge. The first bit is the start
// bit; the following nbits form the code, least significant bit first.
func Decode(rising, falling []float64, bitDuration, interBarcodeGap float64, opts ...Option) (iter.Seq[schema.Barcode], error) {
	d := &decoder{bitDuration: bitDuration, gap: interBarcodeGap, nbits: DefaultBits}
	for _, opt := range opts {
		opt(d)
	}

	if len(rising)+len(falling) < 2 {
		return empty, fmt.Errorf("%w: barcode stream has %d edges", contract.ErrInsufficientData, len(rising)+len(falling))
	}
	if bitDuration <= 0 {
		return empty, fmt.Errorf("bit duration must be greater than 0 (received %g)", bitDuration)
	}
	if interBarcodeGap <= bitDuration {
		return empty, fmt.Errorf("inter-barcode gap %g must exceed bit duration %g", interBarcodeGap, bitDuration)
	}
	if d.nbits <= 0 || d.nbits > 64 {
		return empty, fmt.Errorf("nbits must be in [1, 64] (received %d)", d.nbits)
	}

	d.edges = mergeEdges(rising, falling)
	return d.all, nil
}

func empty(func(schema.Barcode) bool) {}

// mergeEdges interleaves both edge lists in time order. Rising edges win ties.
func mergeEdges(rising, falling []float64) []schema.EdgeEvent {
	edges := make([]schema.EdgeEvent, 0, len(rising)+len(falling))
	for _, t := range rising {
		edges = append(edges, schema.EdgeEvent{Time: t, Polarity: schema.Rising})
	}
	for _, t := range falling {
		edges = append(edges, schema.EdgeEvent{Time: t, Polarity: schema.Falling})
	}
	slices.SortStableFunc(edges, func(a, b schema.EdgeEvent) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.Polarity, a.Polarity)
	})
	return edges
}

// all yields one barcode per word.
func (d *decoder) all(yield func(schema.Barcode) bool) {
	start := 0
	for i := 1; i <= len(d.edges); i++ {
		if i < len(d.edges) && d.edges[i].Time-d.edges[i-1].Time < d.gap {
			continue
		}
		if bc, ok := d.decodeWord(d.edges[start:i]); ok {
			if !yield(bc) {
				return
			}
		}
		start = i
	}
}

// decodeWord reads one word. Words without a rising edge followed by another edge carry no start bit.
func (d *decoder) decodeWord(word []schema.EdgeEvent) (schema.Barcode, bool) {
	first := slices.IndexFunc(word, func(e schema.EdgeEvent) bool { return e.Polarity == schema.Rising })
	if first < 0 || len(word)-first < 2 {
		return schema.Barcode{}, false
	}
	word = word[first:]

	var code uint64
	pos := 0 // bit index within the word, start bit included
	for i := 0; i < len(word)-1 && pos <= d.nbits; i++ {
		n := int(math.Round((word[i+1].Time - word[i].Time) / d.bitDuration))
		high := word[i].Polarity == schema.Rising
		for range n {
			if high && pos >= 1 && pos <= d.nbits {
				code |= 1 << (pos - 1)
			}
			pos++
		}
	}
	return schema.Barcode{Code: code, Start: word[0].Time}, true
}

// Encode renders codes as rising and falling edge times, the inverse of Decode.
// Each code begins at the matching entry of starts with a high start bit.
func Encode(codes []uint64, starts []float64, bitDuration float64, nbits int) (rising, falling []float64) {
	for i, code := range codes {
		if i >= len(starts) {
			break
		}
		start := starts[i]
		high := false
		for pos := range nbits + 1 {
			bit := pos == 0 || code&(1<<(pos-1)) != 0
			if bit == high {
				continue
			}
			t := start + float64(pos)*bitDuration
			if bit {
				rising = append(rising, t)
			} else {
				falling = append(falling, t)
			}
			high = bit
		}
		if high {
			falling = append(falling, start+float64(nbits+1)*bitDuration)
		}
	}
	return rising, falling
}
