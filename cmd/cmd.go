// Package cmd defines the command-line interface for spikewave.
package cmd

import (
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(runsCmd)

	// Add the flags subcommands to the parent flags command
	flagsCmd.AddCommand(flagsStatusCmd)
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsSetCmd)
	flagsCmd.AddCommand(flagsClearCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsClearCmd)
	runsCmd.AddCommand(runsMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("session", "session", "Session name used in artifact paths and flag keys")
	rootCmd.PersistentFlags().String("output-dir", ".", "Directory that receives unit artifacts")
	rootCmd.PersistentFlags().String("artifact-format", string(schema.MsgpackArtifact), "Artifact format: msgpack or json")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of units processed concurrently")
	rootCmd.PersistentFlags().Int("cluster-workers", contract.DefaultWorkers, "Number of clusters extracted concurrently per unit")
	rootCmd.PersistentFlags().Uint64("seed", contract.DefaultSeed, "Seed of the bootstrap random sources")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("flag-backend", string(schema.SQLiteBackend), "Flag backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("flag-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("run-backend", "", "Run tracking backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("run-db-connect", "", "Database connection string for run tracking (must differ from flag-db-connect)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("log-file", "", "Optional rotating JSON log file")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of runCmd to Viper
	runCmd.Flags().String("only-recordings", "", "Comma-separated recordings to process (default all)")
	runCmd.Flags().String("only-probes", "", "Comma-separated probe labels to process (default all)")
	runCmd.Flags().Bool("flag-on-failure", true, "Flag failed and skipped units so later runs skip them")
	if err := viper.BindPFlags(runCmd.Flags()); err != nil {
		contract.LogFatal("Error binding run flags", err)
	}

	// Bind all flags of decodeCmd to Viper
	decodeCmd.Flags().String("recording", "", "Recording whose stream is decoded")
	decodeCmd.Flags().String("probe", "", "Probe label (omit to decode the master stream)")
	decodeCmd.Flags().Int("line", 0, "Digital line carrying the barcodes (0 = stream default)")
	if err := viper.BindPFlags(decodeCmd.Flags()); err != nil {
		contract.LogFatal("Error binding decode flags", err)
	}

	// simulateCmd flags stay off Viper so that --recordings never shadows the manifest key
	simulateCmd.Flags().String("dir", "sim-session", "Directory that receives the synthetic session")
	simulateCmd.Flags().Int("recordings", 1, "Number of recordings to generate")
	simulateCmd.Flags().String("probes", "A,B", "Comma-separated probe labels")
	simulateCmd.Flags().Float64("offset", 1.5, "Clock offset of the first probe in seconds")
	simulateCmd.Flags().Float64("duration", 40, "Seconds of recording per probe")
	simulateCmd.Flags().Int("trials", 8, "Opto trials per recording")

	// Bind all flags of flagsSetCmd to Viper
	flagsSetCmd.Flags().String("reason", "flagged manually", "Why the unit is skipped")
	if err := viper.BindPFlags(flagsSetCmd.Flags()); err != nil {
		contract.LogFatal("Error binding flags set flags", err)
	}

	// Bind all flags of runsMigrateCmd to Viper
	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(runsMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs migrate flags", err)
	}
}
