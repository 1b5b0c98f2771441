package iocache

import (
	"errors"
	"fmt"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/parquet"
)

// ExecuteRunExport writes the run history of store to three Parquet files prefixed by outputFile.
func ExecuteRunExport(store contract.RunStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run tracking is not configured")
	}

	// Check if there's any data to export
	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no run data found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total runs: %d\n", status.TotalRuns)
	fmt.Printf("Total cluster summaries: %d\n", status.TableSizes[clusterSummariesTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	units, err := store.GetAllUnitResults()
	if err != nil {
		return fmt.Errorf("failed to retrieve unit results: %w", err)
	}
	clusters, err := store.GetAllClusterSummaries()
	if err != nil {
		return fmt.Errorf("failed to retrieve cluster summaries: %w", err)
	}

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(runs), runsFile)

	unitsFile := outputFile + ".unit_results.parquet"
	if err := parquet.WriteUnitResultsParquet(parquet.ConvertUnitResultRecords(units), unitsFile); err != nil {
		return fmt.Errorf("failed to write unit results: %w", err)
	}
	fmt.Printf("Exported %d unit results to: %s\n", len(units), unitsFile)

	clustersFile := outputFile + ".cluster_summaries.parquet"
	if err := parquet.WriteClusterSummariesParquet(parquet.ConvertClusterSummaryRecords(clusters), clustersFile); err != nil {
		return fmt.Errorf("failed to write cluster summaries: %w", err)
	}
	fmt.Printf("Exported %d cluster summaries to: %s\n", len(clusters), clustersFile)

	return nil
}
