package cmd

import (
	"github.com/huangsam/spikewave/core"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/spf13/cobra"
)

// runCmd processes every selected unit of the session.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Align, extract waveforms and build PSTHs for every unit of a session.",
	Long: `Process each recording/probe unit of the session manifest.

For every unit:
- Decode the master and probe barcodes and estimate the probe clock offset
- Bootstrap the mean waveform and SNR of every good cluster
- Build trial-averaged PSTHs per opto condition and level
- Publish one artifact under <output-dir>/<session>/probe<P>/

Units run concurrently. A failing or skipped unit never stops its siblings;
with --flag-on-failure it is flagged so that later runs skip it.

Examples:
  # Run the session described in .spikewave.yaml
  spikewave run

  # Rerun a subset after fixing inputs
  spikewave run --only-recordings 2 --only-probes A,C

  # Track the run and keep a CSV summary
  spikewave run --run-backend sqlite --output csv --output-file run.csv`,
	PreRunE: sharedSetupWrapper,
	Run:     executeWith(core.ExecuteRun, "Cannot run session"),
}

// executeWith adapts a session executor to a cobra Run function.
func executeWith(executeFunc core.ExecutorFunc, failure string) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		if err := executeFunc(rootCtx, cfg, storeManager); err != nil {
			contract.LogFatal(failure, err)
		}
	}
}
