package rawio

import (
	"fmt"

	"github.com/huangsam/spikewave/internal/contract"
)

// EventStore holds the digital line transitions of one acquisition stream, OpenEphys style:
// parallel arrays of absolute sample indices and states, where +line marks a rising edge and
// -line a falling edge on that line.
type EventStore struct {
	Samples    []int64
	States     []int64
	SampleRate float64
	Zero       int64 // sample index of recording start
}

// LoadEvents reads an event stream. When the stream names a continuous timestamps file,
// its first entry rebases every event to recording start.
func LoadEvents(cfg contract.StreamConfig) (*EventStore, error) {
	if cfg.Samples == "" || cfg.States == "" {
		return nil, fmt.Errorf("%w: event stream needs both samples and states files", contract.ErrMissingInput)
	}
	samples, err := LoadInt64(cfg.Samples)
	if err != nil {
		return nil, err
	}
	states, err := LoadInt64(cfg.States)
	if err != nil {
		return nil, err
	}

	var zero int64
	if cfg.Timestamps != "" {
		ts, err := LoadInt64(cfg.Timestamps)
		if err != nil {
			return nil, err
		}
		if len(ts) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", contract.ErrInsufficientData, cfg.Timestamps)
		}
		zero = ts[0]
	}
	return NewEventStore(samples, states, cfg.SampleRate, zero)
}

// NewEventStore validates and wraps already loaded arrays.
func NewEventStore(samples, states []int64, sampleRate float64, zero int64) (*EventStore, error) {
	if len(samples) != len(states) {
		return nil, fmt.Errorf("%w: %d event samples vs %d states", contract.ErrInsufficientData, len(samples), len(states))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("event sample rate must be greater than 0 (received %g)", sampleRate)
	}
	return &EventStore{Samples: samples, States: states, SampleRate: sampleRate, Zero: zero}, nil
}

// Edges returns the rising and falling times of a line in seconds since recording start.
func (e *EventStore) Edges(line int) (rising, falling []float64) {
	up, down := int64(line), -int64(line)
	for i, st := range e.States {
		t := float64(e.Samples[i]-e.Zero) / e.SampleRate
		switch st {
		case up:
			rising = append(rising, t)
		case down:
			falling = append(falling, t)
		}
	}
	return rising, falling
}
