package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/olekukonko/tablewriter"
)

// PrintSessionStatus outputs the per-unit presence summary of a session.
func PrintSessionStatus(rows []schema.UnitStatusRow, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, rows)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeStatusCSV(w, rows)
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeStatusTable(w, rows, cfg)
		}, "Wrote table")
	}
}

func writeStatusTable(w io.Writer, rows []schema.UnitStatusRow, cfg *contract.Config) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Recording", "Probe", "Raw", "Sorting", "Artifact", "Skip", "Flag Reason"})

	reasonWidth := getMaxTableTextWidth(cfg, 50)
	var data [][]string
	ready := 0
	for _, r := range rows {
		if r.RawSignal && r.SortingData && !r.Skip {
			ready++
		}
		data = append(data, []string{
			r.Unit.Recording,
			r.Unit.Probe,
			contract.PresenceMark(r.RawSignal, cfg.UseColors),
			contract.PresenceMark(r.SortingData, cfg.UseColors),
			contract.PresenceMark(r.Artifact, cfg.UseColors),
			strconv.FormatBool(r.Skip),
			contract.TruncateText(r.FlagReason, reasonWidth),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Session %s: %d units, %d ready to run\n", cfg.SessionName, len(rows), ready)
	return err
}

func writeStatusCSV(w io.Writer, rows []schema.UnitStatusRow) error {
	header := []string{"session", "recording", "probe", "raw_signal", "sorting_data", "artifact", "skip", "flag_reason"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range rows {
			row := []string{
				r.Unit.Session,
				r.Unit.Recording,
				r.Unit.Probe,
				strconv.FormatBool(r.RawSignal),
				strconv.FormatBool(r.SortingData),
				strconv.FormatBool(r.Artifact),
				strconv.FormatBool(r.Skip),
				r.FlagReason,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	})
}
