// Package main implements the ubcheck CLI tool.
//
// ubcheck executes low-level CFG programs under a checked semantics that
// detects undefined behavior: every allocation, pointer provenance, and
// aliasing permission is tracked at the byte level, and the first
// violation stops the run with a diagnosis.
//
// Usage:
//
//	ubcheck run program.yaml      # Execute a program
//	ubcheck check program.yaml    # Validate without executing
//
// This is the CLI entry point for the standalone checker.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/ubcheck/ub"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	command := os.Args[1]

	switch command {
	case "run":
		runCommand(os.Args[2:])
	case "check":
		checkCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("ubcheck version %s (program format %s)\n", ub.Version, ub.FormatVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Print(`ubcheck - undefined behavior checker for CFG programs

USAGE:
    ubcheck <command> [arguments]

COMMANDS:
    run        Execute a program description and report the outcome
    check      Validate program descriptions without executing them
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Execute a program
    ubcheck run examples/hello.yaml

    # Execute with the relaxed protected-deallocation rule
    ubcheck run -allow-protected-dealloc examples/boxes.yaml

    # Validate descriptions only
    ubcheck check examples/*.yaml

EXIT STATUS:
    run mirrors the program's own exit code on a clean exit; undefined
    behavior, aborts and deadlocks exit with status 1, and malformed
    descriptions or usage errors exit with status 2.
`)
}
