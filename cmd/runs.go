package cmd

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/iocache"
	"github.com/huangsam/spikewave/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runsCmd represents the runs command.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage the run tracking history.",
	Long: `Manage the history of tracked runs.

Runs are tracked when --run-backend is set. Every run stores its unit
outcomes and a per-cluster summary of the published artifacts.`,
}

// runsStatusCmd shows the run store status.
var runsStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show run tracking status.",
	PreRunE: runSetup,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetRunStore()
		if store == nil {
			contract.LogFatal("Cannot get run status", errors.New("run tracking is disabled"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Cannot get run status", err)
		}
		iocache.PrintRunStatus(status)
	},
}

// runsExportCmd exports the run history to parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked runs to parquet files.",
	Long: `Export the run history as three parquet files next to --output-file:
<file>.runs.parquet, <file>.unit_results.parquet and <file>.cluster_summaries.parquet.

Examples:
  spikewave runs export --run-backend sqlite --output-file history`,
	PreRunE: runSetup,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetRunStore()
		if store == nil {
			contract.LogFatal("Cannot export runs", errors.New("run tracking is disabled"))
		}
		outputFile := viper.GetString("output-file")
		if err := iocache.ExecuteRunExport(store, outputFile); err != nil {
			contract.LogFatal("Cannot export runs", err)
		}
		fmt.Printf("Exported run history to %s.*.parquet\n", outputFile)
	},
}

// runsClearCmd removes the run history.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all tracked runs.",
	Long: `Remove all tracked runs.

For SQLite the database file is deleted. For MySQL and PostgreSQL the
run tables are dropped.`,
	PreRunE: runMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		backend := schema.DatabaseBackend(viper.GetString("run-backend"))
		connStr := viper.GetString("run-db-connect")
		dbPath := cmp.Or(connStr, contract.GetRunDBFilePath())
		if err := iocache.ClearRuns(backend, dbPath, connStr); err != nil {
			contract.LogFatal("Cannot clear runs", err)
		}
		fmt.Println("Cleared run history")
	},
}

// runsMigrateCmd applies the run store schema migrations.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply run store schema migrations.",
	Long: `Apply the run store schema migrations.

Examples:
  # Migrate to the latest version
  spikewave runs migrate --run-backend sqlite

  # Roll back everything
  spikewave runs migrate --run-backend postgresql --target-version 0`,
	PreRunE: runMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		backend := schema.DatabaseBackend(viper.GetString("run-backend"))
		connStr := viper.GetString("run-db-connect")
		if err := iocache.MigrateRuns(backend, connStr, viper.GetInt("target-version")); err != nil {
			contract.LogFatal("Cannot migrate run store", err)
		}
		fmt.Println("Run store migrated")
	},
}

// runSetup opens only the run store, without reading the session manifest.
func runSetup(cmd *cobra.Command, args []string) error {
	if err := runMigrateSetup(cmd, args); err != nil {
		return err
	}
	backend := schema.DatabaseBackend(viper.GetString("run-backend"))
	return iocache.InitStores("", "", backend, viper.GetString("run-db-connect"))
}

// runMigrateSetup validates the run backend without opening a store.
func runMigrateSetup(_ *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	backend := schema.DatabaseBackend(viper.GetString("run-backend"))
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return fmt.Errorf("invalid run backend '%s'. must be sqlite, mysql, postgresql, none", backend)
	}
	return contract.ValidateDatabaseConnectionString(backend, viper.GetString("run-db-connect"))
}
