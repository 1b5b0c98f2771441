// Package core orchestrates barcode alignment, waveform extraction and PSTH building
// over the recording/probe units of a session.
package core

import (
	"context"
	"os"
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/outwriter"
	"github.com/huangsam/spikewave/internal/rawio"
	"github.com/huangsam/spikewave/schema"
)

// ExecutorFunc defines the function signature for executing the session commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error

// ExecuteRun processes every selected unit and prints one line per unit.
// It serves as the main entry point for the 'run' command.
func ExecuteRun(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	start := time.Now()
	runner := NewSessionRunner(cfg, mgr)
	if cfg.Output == schema.TextOut {
		outwriter.LogRunHeader(cfg, runner.RunUUID())
	}
	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	return outwriter.PrintUnitResults(results, cfg, time.Since(start))
}

// ExecuteSummary prints which inputs, artifacts and flags exist for each unit.
// It serves as the main entry point for the 'summary' command.
func ExecuteSummary(_ context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	var flags contract.FlagStore
	if mgr != nil {
		flags = mgr.GetFlagStore()
	}
	rows, err := BuildSessionStatus(cfg, flags)
	if err != nil {
		return err
	}
	return outwriter.PrintSessionStatus(rows, cfg)
}

// RunUnit processes one unit of the session. Nothing is printed to stdout.
func RunUnit(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager, recording, probe string) (schema.UnitResult, error) {
	return NewSessionRunner(cfg, mgr).RunUnit(ctx, recording, probe)
}

// DecodeStream decodes the barcodes found on one line of an event stream.
func DecodeStream(cfg *contract.Config, stream contract.StreamConfig, line int) ([]schema.Barcode, error) {
	events, err := rawio.LoadEvents(stream)
	if err != nil {
		return nil, err
	}
	return DecodeBarcodes(cfg, events, line)
}

// ExecuteDecode prints the barcodes of a stream.
func ExecuteDecode(_ context.Context, cfg *contract.Config, stream contract.StreamConfig, line int) error {
	codes, err := DecodeStream(cfg, stream, line)
	if err != nil {
		return err
	}
	return outwriter.PrintBarcodes(codes, cfg)
}

// BuildSessionStatus lists every selected unit with the presence of its inputs, its artifact
// and its flag. Only a failing flag store is an error; missing files are just reported.
func BuildSessionStatus(cfg *contract.Config, flags contract.FlagStore) ([]schema.UnitStatusRow, error) {
	var rows []schema.UnitStatusRow
	for _, rec := range cfg.Recordings {
		for _, p := range rec.Probes {
			if !cfg.Selected(rec.Name, p.Label) {
				continue
			}
			key := schema.UnitKey{Session: cfg.SessionName, Recording: rec.Name, Probe: p.Label}
			row := schema.UnitStatusRow{
				Unit:        key,
				RawSignal:   fileExists(p.Raw),
				SortingData: fileExists(p.SpikeTimes) && fileExists(p.SpikeClusters) && fileExists(p.ClusterLabels),
				Artifact:    fileExists(outwriter.ArtifactPath(cfg.OutputDir, key, cfg.ArtifactFormat)),
			}
			if flags != nil {
				flag, ok, err := flags.Get(key)
				if err != nil {
					return nil, err
				}
				if ok {
					row.Skip = flag.Skip
					row.FlagReason = flag.Reason
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
