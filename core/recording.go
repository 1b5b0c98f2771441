package core

import (
	"fmt"
	"slices"

	"github.com/huangsam/spikewave/core/barcode"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/huangsam/spikewave/schema"
	"go.uber.org/zap"
)

// recordingInputs holds what every probe of a recording shares: the decoded master
// barcodes, the master opto onsets and the trial metadata. A load error is kept and
// reported by every unit of the recording instead of aborting the session.
type recordingInputs struct {
	config  contract.RecordingConfig
	master  []schema.Barcode
	optoOn  []float64
	trials  *rawio.TrialMetadata
	loadErr error
}

// loadRecording decodes the master stream and reads trial metadata of one recording.
func loadRecording(cfg *contract.Config, rec contract.RecordingConfig, logger *zap.SugaredLogger) *recordingInputs {
	in := &recordingInputs{config: rec}

	events, err := rawio.LoadEvents(rec.Master)
	if err != nil {
		in.loadErr = fmt.Errorf("master events: %w", err)
		return in
	}

	codes, err := DecodeBarcodes(cfg, events, rec.Master.BarcodeLine)
	if err != nil {
		in.loadErr = fmt.Errorf("master barcodes: %w", err)
		return in
	}
	in.master = codes
	in.optoOn, _ = events.Edges(rec.Master.OptoLine)

	if rec.Trials != "" {
		trials, err := rawio.LoadTrials(rec.Trials)
		if err != nil {
			in.loadErr = fmt.Errorf("trial metadata: %w", err)
			return in
		}
		in.trials = trials
	}

	logger.Debugw("master stream decoded",
		"barcodes", len(in.master),
		"opto_onsets", len(in.optoOn),
		"trials", in.numTrials(),
	)
	return in
}

func (in *recordingInputs) numTrials() int {
	if in.trials == nil {
		return 0
	}
	return in.trials.NumTrials()
}

// DecodeBarcodes decodes the barcode line of an event stream with the configured bit timing.
func DecodeBarcodes(cfg *contract.Config, events *rawio.EventStore, line int) ([]schema.Barcode, error) {
	rising, falling := events.Edges(line)
	seq, err := barcode.Decode(rising, falling, cfg.Barcode.BitDuration, cfg.Barcode.InterBarcodeGap,
		barcode.WithBits(cfg.Barcode.NBits))
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}
