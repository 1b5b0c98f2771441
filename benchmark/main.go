// Package main provides a performance benchmarking tool for the spikewave CLI.
// It generates synthetic sessions of increasing size, runs each one several times
// per worker count, treating the first successful run as cold and averaging the rest as warm,
// and writes CSV output for performance analysis and documentation.
//
// Prerequisites:
// - spikewave binary installed and available in PATH
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Directory that receives the generated sessions
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult holds the cold time and warm average of one session and worker count.
type BenchmarkResult struct {
	Session  string
	Workers  int
	ColdTime string
	WarmTime string
}

// SessionShape describes one generated benchmark session.
type SessionShape struct {
	Name       string
	Recordings int
	Probes     string
	Duration   float64
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir string
	Timeout time.Duration
	Runs    int
	Workers []int
	Shapes  []SessionShape
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir: os.Args[1],
		Timeout: 5 * time.Minute,
		Runs:    4,
		Workers: []int{1, 4, 8},
		Shapes: []SessionShape{
			{Name: "small", Recordings: 1, Probes: "A", Duration: 40},
			{Name: "medium", Recordings: 2, Probes: "A,B,C", Duration: 120},
			{Name: "large", Recordings: 4, Probes: "A,B,C,D,E,F", Duration: 300},
		},
	}

	if _, err := exec.LookPath("spikewave"); err != nil {
		fmt.Printf("Prerequisites check failed: spikewave binary not found in PATH\n")
		os.Exit(1)
	}

	results, err := runBenchmarks(config)
	if err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// runBenchmarks generates every session and times it across the configured worker counts
func runBenchmarks(config BenchmarkConfig) ([]BenchmarkResult, error) {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d sessions, %v timeout, workers %v, %d runs each\n",
		len(config.Shapes), config.Timeout, config.Workers, config.Runs)

	for _, shape := range config.Shapes {
		dir := filepath.Join(config.WorkDir, shape.Name)
		fmt.Printf("Generating %s session in %s\n", shape.Name, dir)
		gen := exec.Command("spikewave", "simulate",
			"--dir", dir,
			"--recordings", strconv.Itoa(shape.Recordings),
			"--probes", shape.Probes,
			"--duration", strconv.FormatFloat(shape.Duration, 'f', -1, 64))
		if output, err := gen.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("simulate %s: %w\nOutput: %s", shape.Name, err, string(output))
		}

		for _, workers := range config.Workers {
			fmt.Printf("Running %s with %d workers\n", shape.Name, workers)
			cold, warm := runBenchmark(config, filepath.Join(dir, "spikewave.yaml"), workers)
			result := BenchmarkResult{
				Session:  shape.Name,
				Workers:  workers,
				ColdTime: formatSeconds(cold),
				WarmTime: average(warm),
			}
			fmt.Printf("  Cold time: %s, Warm average: %s\n", result.ColdTime, result.WarmTime)
			results = append(results, result)
		}
	}

	return results, nil
}

// runBenchmark executes spikewave run multiple times and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, configPath string, workers int) (coldTime float64, warmTimes []float64) {
	args := []string{
		"run",
		"--config", configPath,
		"--workers", strconv.Itoa(workers),
		"--flag-backend", "none",
	}

	var times []float64
	for run := 1; run <= config.Runs; run++ {
		start := time.Now()

		cmd := exec.Command("spikewave", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && isSuccess(output) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			// Timeout - don't add to times
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// isSuccess checks if run output indicates every unit completed
func isSuccess(output []byte) bool {
	outputStr := string(output)
	return strings.Contains(outputStr, "Run completed in") &&
		strings.Contains(outputStr, " 0 skipped, 0 failed")
}

func formatSeconds(s float64) string {
	if s <= 0 {
		return "TIMEOUT"
	}
	return fmt.Sprintf("%.3fs", s)
}

func average(times []float64) string {
	if len(times) == 0 {
		return "TIMEOUT"
	}
	var sum float64
	for _, t := range times {
		sum += t
	}
	return formatSeconds(sum / float64(len(times)))
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/spikewave_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"session", "workers", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Session, strconv.Itoa(result.Workers), result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, result := range results {
		fmt.Printf("  %-8s %2d workers: Cold: %s, Warm: %s\n", result.Session, result.Workers, result.ColdTime, result.WarmTime)
	}
}
