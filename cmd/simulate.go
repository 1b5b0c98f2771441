package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/simulate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// simulateCmd writes a synthetic session with a matching config file.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Write a synthetic session with known offsets and spike templates.",
	Long: `Generate master and probe event streams, raw signals, sorter output and
opto trial metadata, plus a spikewave.yaml that runs them.

The planted clock offsets and cluster channels make it easy to check a
build end to end without real recordings.

Examples:
  spikewave simulate --dir /tmp/sim
  spikewave run --config /tmp/sim/spikewave.yaml`,
	Run: func(cmd *cobra.Command, _ []string) {
		flags := cmd.Flags()
		dir, _ := flags.GetString("dir")
		opts := simulate.DefaultOptions(dir)
		opts.Recordings, _ = flags.GetInt("recordings")
		probes, _ := flags.GetString("probes")
		opts.Probes = strings.Split(probes, ",")
		opts.Offset, _ = flags.GetFloat64("offset")
		opts.Duration, _ = flags.GetFloat64("duration")
		opts.Trials, _ = flags.GetInt("trials")
		opts.Seed = viper.GetUint64("seed")

		sess, err := simulate.Generate(opts)
		if err != nil {
			contract.LogFatal("Cannot generate session", err)
		}
		configPath := filepath.Join(dir, "spikewave.yaml")
		if err := sess.WriteConfig(configPath, filepath.Join(dir, "out")); err != nil {
			contract.LogFatal("Cannot write session config", err)
		}
		fmt.Printf("Wrote %d recordings with probes %s to %s\n", len(sess.Recordings), strings.Join(opts.Probes, ","), dir)
		fmt.Printf("Run it with: spikewave run --config %s\n", configPath)
	},
}
