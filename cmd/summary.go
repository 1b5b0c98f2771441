package cmd

import (
	"github.com/huangsam/spikewave/core"
	"github.com/spf13/cobra"
)

// summaryCmd shows which units are ready, done or flagged.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show input, artifact and flag status of every unit.",
	Long: `List every recording/probe unit of the session with:
- Whether the raw signal and the sorter output exist
- Whether an artifact has been published
- The persisted skip flag and its reason

Nothing is processed or written.

Examples:
  spikewave summary
  spikewave summary --output json`,
	PreRunE: sharedSetupWrapper,
	Run:     executeWith(core.ExecuteSummary, "Cannot summarize session"),
}
