// Package schema has the typed records shared by the core pipeline, the stores and the writers.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// EdgeEvent is one transition of a digital line, in seconds of its own stream clock.
type EdgeEvent struct {
	Time     float64
	Polarity Polarity
}

// Barcode is a decoded integer code and the time of its first rising edge.
type Barcode struct {
	Code  uint64  `json:"code"`
	Start float64 `json:"start"`
}

// ClockOffset maps probe-local time to master time: master = probe + Offset.
type ClockOffset struct {
	Offset       float64         `json:"offset"`
	Policy       AlignmentPolicy `json:"policy"`
	MatchedPairs int             `json:"matched_pairs"`
	FirstCode    uint64          `json:"first_code"`

	// Drift is the fitted slope minus one; only set when MatchedPairs >= 2.
	Drift     float64 `json:"drift"`
	Intercept float64 `json:"intercept"`
}

// Apply converts a probe-local time in seconds to master time.
func (c ClockOffset) Apply(probeTime float64) float64 {
	return probeTime + c.Offset
}

// ExtractionParams holds the waveform extraction knobs.
type ExtractionParams struct {
	NChannels       int `json:"n_channels" mapstructure:"n-channels"`
	TotWaveforms    int `json:"tot_waveforms" mapstructure:"tot-waveforms"`
	SamplesPerSpike int `json:"samples_per_spike" mapstructure:"samples-per-spike"`
	PreSamples      int `json:"pre_samples" mapstructure:"pre-samples"`
	NBoots          int `json:"n_boots" mapstructure:"n-boots"`
}

// DefaultExtractionParams returns the stock extraction settings for 384-channel probes.
func DefaultExtractionParams() ExtractionParams {
	return ExtractionParams{
		NChannels:       384,
		TotWaveforms:    200,
		SamplesPerSpike: 90,
		PreSamples:      30,
		NBoots:          100,
	}
}

// Validate checks that the parameters describe a usable window.
func (p ExtractionParams) Validate() error {
	switch {
	case p.NChannels <= 0:
		return fmt.Errorf("n-channels must be greater than 0 (received %d)", p.NChannels)
	case p.TotWaveforms <= 0:
		return fmt.Errorf("tot-waveforms must be greater than 0 (received %d)", p.TotWaveforms)
	case p.SamplesPerSpike <= 0:
		return fmt.Errorf("samples-per-spike must be greater than 0 (received %d)", p.SamplesPerSpike)
	case p.PreSamples < 0 || p.PreSamples >= p.SamplesPerSpike:
		return fmt.Errorf("pre-samples must be in [0, %d) (received %d)", p.SamplesPerSpike, p.PreSamples)
	case p.NBoots <= 0:
		return fmt.Errorf("n-boots must be greater than 0 (received %d)", p.NBoots)
	}
	return nil
}

// ClusterWaveform is the bootstrapped mean waveform of one cluster.
// Waveform and SNR are indexed [sample][exported channel].
type ClusterWaveform struct {
	ClusterID  int         `json:"cluster_id"`
	Waveform   [][]float64 `json:"waveform"`
	SNR        [][]float64 `json:"snr"`
	SpikeTimes []float64   `json:"spike_times"`
	SpikeCount int         `json:"spike_count"`
	ValidDraws int         `json:"valid_draws"`
	TotalDraws int         `json:"total_draws"`
}

// PeakSNR returns the largest absolute SNR over all cells.
func (c ClusterWaveform) PeakSNR() float64 {
	var peak float64
	for _, row := range c.SNR {
		for _, v := range row {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// OptoTrial is one stimulus presentation.
type OptoTrial struct {
	Condition string
	Level     float64
	Start     float64
	End       float64
}

// PSTHParams are the histogram settings for a stimulus condition.
type PSTHParams struct {
	Pretime   float64 `json:"pretime" mapstructure:"pretime"`
	WindowDur float64 `json:"window_dur" mapstructure:"window-dur"`
	BinSize   float64 `json:"binsize" mapstructure:"binsize"`
}

// PSTH is a trial-averaged firing rate histogram.
type PSTH struct {
	Rates     []float64 `json:"psth"`
	BinStarts []float64 `json:"times"`
	Trials    int       `json:"trials"`
}

// UnitKey identifies a recording/probe unit within a session.
type UnitKey struct {
	Session   string `json:"session" db:"session_name"`
	Recording string `json:"recording" db:"recording"`
	Probe     string `json:"probe" db:"probe"`
}

// String renders the key as session/recording/probe.
func (k UnitKey) String() string {
	return k.Session + "/" + k.Recording + "/" + k.Probe
}

// ParseUnitKey parses the session/recording/probe form produced by UnitKey.String.
func ParseUnitKey(s string) (UnitKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return UnitKey{}, fmt.Errorf("invalid unit key %q (expected session/recording/probe)", s)
	}
	return UnitKey{Session: parts[0], Recording: parts[1], Probe: parts[2]}, nil
}

// UnitResult is the three-way outcome of one unit run.
type UnitResult struct {
	Unit         UnitKey       `json:"unit"`
	State        UnitState     `json:"state"`
	Reason       string        `json:"reason,omitempty"`
	Err          error         `json:"-"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	Clusters     int           `json:"clusters"`
	Duration     time.Duration `json:"duration"`
}

// UnitFlag is the persisted skip state of a unit.
type UnitFlag struct {
	UnitKey
	Skip      bool      `json:"skip"`
	Reason    string    `json:"reason"`
	UpdatedAt time.Time `json:"updated_at"`
}
