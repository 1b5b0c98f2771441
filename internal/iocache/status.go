package iocache

import (
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/spikewave/schema"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// PrintFlagStatus prints flag store status information.
func PrintFlagStatus(status schema.FlagStatus) {
	fmt.Printf("Flag Backend: %s\n", status.Backend)
	fmt.Printf("Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	fmt.Printf("Total Flags: %d\n", status.TotalFlags)
	fmt.Printf("Skip Flags: %d\n", status.SkipFlags)
	if status.TotalFlags > 0 {
		fmt.Printf("Last Update: %s\n", status.LastFlagTime.Format(statusTimeLayout))
	}
}

// PrintRunStatus prints run store status information.
func PrintRunStatus(status schema.RunStatus) {
	fmt.Printf("Run Backend: %s\n", status.Backend)
	fmt.Printf("Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	fmt.Printf("Total Runs: %d\n", status.TotalRuns)
	if status.TotalRuns > 0 {
		fmt.Printf("Last Run ID: %d (%s)\n", status.LastRunID, status.LastRunUUID)
		fmt.Printf("Last Run: %s\n", status.LastRunTime.Format(statusTimeLayout))
		fmt.Printf("Oldest Run: %s\n", status.OldestRunTime.Format(statusTimeLayout))
		fmt.Printf("Clusters Summarized: %d\n", status.TotalClusters)
	}
	if len(status.UnitsByState) > 0 {
		fmt.Println("Units By State:")
		for _, state := range slices.Sorted(maps.Keys(status.UnitsByState)) {
			fmt.Printf("  %s: %d\n", state, status.UnitsByState[state])
		}
	}
	fmt.Println("Table Sizes:")
	for _, table := range slices.Sorted(maps.Keys(status.TableSizes)) {
		fmt.Printf("  %s: %d rows\n", table, status.TableSizes[table])
	}
}
