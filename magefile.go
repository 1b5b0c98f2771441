//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles the CLI and the benchmark tool into ./bin.
func Build() error {
	mg.Deps(BuildSpikewave, BuildBenchmark)
	fmt.Println("Compilation finished")
	return nil
}

func BuildSpikewave() error {
	fmt.Println("Building spikewave executable...")
	return run("go", "build", "-o", "./bin/spikewave", "./cmd/spikewave")
}

func BuildBenchmark() error {
	fmt.Println("Building benchmark executable...")
	return run("go", "build", "-o", "./bin/benchmark", "./benchmark")
}

// Test runs the unit tests with the race detector.
func Test() error {
	return run("go", "test", "-race", "./...")
}

// Integration runs the CLI tests against a simulated session.
func Integration() error {
	return run("go", "test", "-tags", "integration", "./integration")
}

// Database runs the CLI tests against MySQL and PostgreSQL containers.
func Database() error {
	return run("go", "test", "-tags", "database", "-timeout", "10m", "./integration")
}

// Lint runs go vet over every package.
func Lint() error {
	return run("go", "vet", "./...")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
