package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/olekukonko/tablewriter"
)

// flagTimeLayout is the timestamp layout of flag listings.
const flagTimeLayout = "2006-01-02 15:04:05"

// PrintFlags outputs the persisted unit flags.
func PrintFlags(flags []schema.UnitFlag, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, flags)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeFlagsCSV(w, flags)
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeFlagsTable(w, flags, cfg)
		}, "Wrote table")
	}
}

func writeFlagsTable(w io.Writer, flags []schema.UnitFlag, cfg *contract.Config) error {
	if len(flags) == 0 {
		_, err := fmt.Fprintln(w, "No unit flags recorded.")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Session", "Recording", "Probe", "Skip", "Updated", "Reason"})

	reasonWidth := getMaxTableTextWidth(cfg, 60)
	var data [][]string
	for _, f := range flags {
		skip := strconv.FormatBool(f.Skip)
		if f.Skip && cfg.UseColors {
			skip = contract.SkippedColor.Sprint(skip)
		}
		data = append(data, []string{
			f.Session,
			f.Recording,
			f.Probe,
			skip,
			f.UpdatedAt.Local().Format(flagTimeLayout),
			contract.TruncateText(f.Reason, reasonWidth),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeFlagsCSV(w io.Writer, flags []schema.UnitFlag) error {
	header := []string{"session", "recording", "probe", "skip", "updated_at", "reason"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, f := range flags {
			row := []string{
				f.Session,
				f.Recording,
				f.Probe,
				strconv.FormatBool(f.Skip),
				f.UpdatedAt.UTC().Format(time.RFC3339),
				f.Reason,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	})
}
