// Package outwriter renders unit results, session status, flags and barcodes as text tables,
// CSV or JSON, and publishes unit artifacts.
package outwriter

import (
	"fmt"

	"github.com/huangsam/spikewave/internal/contract"
)

// LogRunHeader prints a concise, 2-line header before a session run.
func LogRunHeader(cfg *contract.Config, runUUID string) {
	units := 0
	for _, rec := range cfg.Recordings {
		for _, p := range rec.Probes {
			if cfg.Selected(rec.Name, p.Label) {
				units++
			}
		}
	}

	// Line 1: session and unit count
	fmt.Printf("Session: %s (%d units, %d workers, run %s)\n", cfg.SessionName, units, cfg.Workers, runUUID)

	// Line 2: where artifacts go
	fmt.Printf("Output: %s (%s, alignment: %s)\n", cfg.OutputDir, cfg.ArtifactFormat, cfg.AlignmentPolicy)
}
