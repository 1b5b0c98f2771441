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
	"github.com/olekukonko/tablewriter/tw"
)

// PrintUnitResults outputs the unit results, dispatching based on the configured output format.
func PrintUnitResults(results []schema.UnitResult, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, results)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeUnitCSV(w, results)
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeUnitTable(w, results, cfg, duration)
		}, "Wrote table")
	}
}

// stateLabel renders a unit state, colored when enabled.
func stateLabel(state schema.UnitState, useColors bool) string {
	if useColors {
		return contract.GetColorState(state)
	}
	return contract.GetPlainState(state)
}

func writeUnitTable(w io.Writer, results []schema.UnitResult, cfg *contract.Config, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Recording", "Probe", "State", "Clusters", "Duration", "Reason"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	reasonWidth := getMaxTableTextWidth(cfg, 60)
	var data [][]string
	var completed, skipped, failed int
	for i, r := range results {
		switch r.State {
		case schema.UnitCompleted:
			completed++
		case schema.UnitSkipped:
			skipped++
		default:
			failed++
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			r.Unit.Recording,
			r.Unit.Probe,
			stateLabel(r.State, cfg.UseColors),
			strconv.Itoa(r.Clusters),
			r.Duration.Round(time.Millisecond).String(),
			contract.TruncateText(r.Reason, reasonWidth),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Units: %d completed, %d skipped, %d failed\n", completed, skipped, failed); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Run completed in %v with %d workers. Flag backend: %s\n",
		duration.Round(time.Millisecond), cfg.Workers, cfg.FlagBackend)
	return err
}

func writeUnitCSV(w io.Writer, results []schema.UnitResult) error {
	header := []string{"session", "recording", "probe", "state", "clusters", "duration_ms", "artifact_path", "reason"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range results {
			row := []string{
				r.Unit.Session,
				r.Unit.Recording,
				r.Unit.Probe,
				string(r.State),
				strconv.Itoa(r.Clusters),
				strconv.FormatInt(r.Duration.Milliseconds(), 10),
				r.ArtifactPath,
				r.Reason,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	})
}
