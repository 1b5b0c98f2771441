package cmd

import (
	"errors"

	"github.com/huangsam/spikewave/core"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// decodeCmd prints the barcodes found on one event stream.
var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Print the barcodes decoded from a master or probe event stream.",
	Long: `Decode the barcode line of an event stream named in the session manifest.

Useful for:
- Checking barcode timing settings before a full run
- Comparing master and probe codes when alignment fails

Examples:
  # Master stream of recording 1
  spikewave decode --recording 1

  # Probe B, barcodes on line 3
  spikewave decode --recording 1 --probe B --line 3`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		recording := viper.GetString("recording")
		if recording == "" {
			contract.LogFatal("Cannot decode barcodes", errors.New("--recording is required"))
		}
		stream, err := cfg.FindStream(recording, viper.GetString("probe"))
		if err != nil {
			contract.LogFatal("Cannot decode barcodes", err)
		}
		line := viper.GetInt("line")
		if line <= 0 {
			line = stream.BarcodeLine
		}
		if err := core.ExecuteDecode(rootCtx, cfg, stream, line); err != nil {
			contract.LogFatal("Cannot decode barcodes", err)
		}
	},
}
