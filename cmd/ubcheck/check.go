// check.go implements the 'ubcheck check' command.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/ubcheck/ub"
)

// checkCommand validates program descriptions without executing them.
// All files are checked even when an early one fails, so a batch run
// reports every malformed description at once.
func checkCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: check takes at least one program description")
		os.Exit(2)
	}

	failed := false
	for _, path := range args {
		if err := ub.CheckFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok\n", path)
	}
	if failed {
		os.Exit(2)
	}
}
