package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/spikewave/schema"
)

// Color variables for console output.
var (
	CompletedColor = color.New(color.FgGreen, color.Bold) // CompletedColor marks finished units.
	SkippedColor   = color.New(color.FgYellow)            // SkippedColor marks units skipped by a flag or missing input.
	FailedColor    = color.New(color.FgRed, color.Bold)   // FailedColor marks units that failed.
	MissingColor   = color.New(color.FgMagenta)           // MissingColor marks absent inputs in status tables.
)

// GetPlainState returns the plain text label of a unit state.
func GetPlainState(state schema.UnitState) string {
	switch state {
	case schema.UnitCompleted:
		return "Completed"
	case schema.UnitSkipped:
		return "Skipped"
	case schema.UnitFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// GetColorState returns a colored label of a unit state for console output.
func GetColorState(state schema.UnitState) string {
	text := GetPlainState(state)

	switch state {
	case schema.UnitCompleted:
		return CompletedColor.Sprint(text)
	case schema.UnitSkipped:
		return SkippedColor.Sprint(text)
	case schema.UnitFailed:
		return FailedColor.Sprint(text)
	default:
		return text
	}
}

// PresenceMark renders a yes/no cell, coloring missing inputs when colors are enabled.
func PresenceMark(present bool, useColors bool) string {
	if present {
		return "yes"
	}
	if useColors {
		return MissingColor.Sprint("no")
	}
	return "no"
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// GetFlagDBFilePath returns the path to the SQLite DB file for flag storage.
func GetFlagDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".spikewave_flags.db"
	}
	return filepath.Join(homeDir, ".spikewave_flags.db")
}

// GetRunDBFilePath returns the path to the SQLite DB file for run tracking.
func GetRunDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".spikewave_runs.db"
	}
	return filepath.Join(homeDir, ".spikewave_runs.db")
}

// TruncateText truncates text to a maximum width with an ellipsis suffix.
// Requires maxWidth > 3 so there is room for the ellipsis and at least one character.
func TruncateText(text string, maxWidth int) string {
	runes := []rune(text)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return text
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
