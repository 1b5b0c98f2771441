package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintBarcodes outputs decoded barcodes in stream order.
func PrintBarcodes(codes []schema.Barcode, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, codes)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"index", "code", "start"}, func(cw *csv.Writer) error {
				for i, c := range codes {
					if err := cw.Write([]string{strconv.Itoa(i), strconv.FormatUint(c.Code, 10), fmtFloat(c.Start)}); err != nil {
						return fmt.Errorf("failed to write CSV row: %w", err)
					}
				}
				return nil
			})
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeBarcodeTable(w, codes)
		}, "Wrote table")
	}
}

func writeBarcodeTable(w io.Writer, codes []schema.Barcode) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Code", "Hex", "Start (s)", "Gap (s)"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, c := range codes {
		gap := ""
		if i > 0 {
			gap = fmtFloat(c.Start - codes[i-1].Start)
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(c.Code, 10),
			fmt.Sprintf("%#x", c.Code),
			fmtFloat(c.Start),
			gap,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Decoded %d barcodes\n", len(codes))
	return err
}
