package cmd

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/iocache"
	"github.com/huangsam/spikewave/internal/outwriter"
	"github.com/huangsam/spikewave/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagsCmd represents the flags command.
var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage the persisted skip flags of units.",
	Long: `Manage the flags that make runs skip a recording/probe unit.

A unit is flagged automatically when it fails or lacks inputs and
--flag-on-failure is set. Flags can also be set by hand, for example
after inspecting a noisy probe.`,
}

// flagsStatusCmd shows the flag store status.
var flagsStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show flag store status.",
	Long:    `Display the backend, connection state and counts of the flag store.`,
	PreRunE: flagSetup,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetFlagStore()
		if store == nil {
			contract.LogFatal("Cannot get flag status", errors.New("flag store is disabled"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Cannot get flag status", err)
		}
		iocache.PrintFlagStatus(status)
	},
}

// flagsListCmd lists every flag in the configured output format.
var flagsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List every recorded unit flag.",
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetFlagStore()
		if store == nil {
			contract.LogFatal("Cannot list flags", errors.New("flag store is disabled"))
		}
		flags, err := store.List()
		if err != nil {
			contract.LogFatal("Cannot list flags", err)
		}
		if err := outwriter.PrintFlags(flags, cfg); err != nil {
			contract.LogFatal("Cannot print flags", err)
		}
	},
}

// flagsSetCmd marks a unit so that runs skip it.
var flagsSetCmd = &cobra.Command{
	Use:   "set <recording> <probe> | set <session/recording/probe>",
	Short: "Flag a unit so that runs skip it.",
	Long: `Flag a unit so that runs skip it.

Examples:
  spikewave flags set 1 B --reason "probe drifted"
  spikewave flags set mouse1/1/B`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		key, err := unitFromArgs(args)
		if err != nil {
			contract.LogFatal("Cannot set flag", err)
		}
		store := iocache.Manager.GetFlagStore()
		if store == nil {
			contract.LogFatal("Cannot set flag", errors.New("flag store is disabled"))
		}
		flag := schema.UnitFlag{
			UnitKey:   key,
			Skip:      true,
			Reason:    viper.GetString("reason"),
			UpdatedAt: time.Now(),
		}
		if err := store.Set(flag); err != nil {
			contract.LogFatal("Cannot set flag", err)
		}
		fmt.Printf("Flagged %s: %s\n", key, flag.Reason)
	},
}

// flagsClearCmd removes one flag or the whole flag store.
var flagsClearCmd = &cobra.Command{
	Use:   "clear [<recording> <probe> | <session/recording/probe>]",
	Short: "Clear one unit flag, or every flag when no unit is given.",
	Long: `Clear one unit flag, or every flag when no unit is given.

Clearing everything removes the SQLite database file, or drops the
flags table for MySQL and PostgreSQL.

Examples:
  spikewave flags clear 1 B
  spikewave flags clear`,
	Args:    cobra.MaximumNArgs(2),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		if len(args) == 0 {
			iocache.CloseStores()
			dbPath := cmp.Or(cfg.FlagDBConnect, contract.GetFlagDBFilePath())
			if err := iocache.ClearFlags(cfg.FlagBackend, dbPath, cfg.FlagDBConnect); err != nil {
				contract.LogFatal("Cannot clear flags", err)
			}
			fmt.Println("Cleared all unit flags")
			return
		}
		key, err := unitFromArgs(args)
		if err != nil {
			contract.LogFatal("Cannot clear flag", err)
		}
		store := iocache.Manager.GetFlagStore()
		if store == nil {
			contract.LogFatal("Cannot clear flag", errors.New("flag store is disabled"))
		}
		if err := store.Clear(key); err != nil {
			contract.LogFatal("Cannot clear flag", err)
		}
		fmt.Printf("Cleared flag of %s\n", key)
	},
}

// flagSetup opens only the flag store, without reading the session manifest.
func flagSetup(_ *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	backend := schema.DatabaseBackend(viper.GetString("flag-backend"))
	connStr := viper.GetString("flag-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}
	return iocache.InitStores(backend, connStr, "", "")
}

// unitFromArgs accepts either a full unit key or a recording and probe of the configured session.
func unitFromArgs(args []string) (schema.UnitKey, error) {
	if len(args) == 1 {
		return schema.ParseUnitKey(args[0])
	}
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		return schema.UnitKey{}, errors.New("expected <recording> <probe> or <session/recording/probe>")
	}
	return schema.UnitKey{Session: cfg.SessionName, Recording: args[0], Probe: args[1]}, nil
}
