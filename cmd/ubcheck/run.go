// run.go implements the 'ubcheck run' command.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kolkov/ubcheck/ub"
)

// runCommand executes one program description and maps its outcome to an
// exit status: a clean exit passes the program's own code through, every
// detected failure mode exits 1, and load errors exit 2.
func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	allowProtected := fs.Bool("allow-protected-dealloc", false,
		"permit deallocation while a strongly protected pointer with no accessed bytes exists")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: run takes exactly one program description")
		os.Exit(2)
	}

	res, err := ub.RunFile(fs.Arg(0), ub.Options{
		AllowProtectedDeallocWithEmptyRange: *allowProtected,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch res.Kind {
	case ub.Exit:
		os.Exit(res.ExitCode)
	case ub.Abort:
		fmt.Fprintln(os.Stderr, "program aborted")
		os.Exit(1)
	case ub.Deadlock:
		fmt.Fprintln(os.Stderr, "deadlock: every remaining thread is blocked")
		os.Exit(1)
	case ub.UndefinedBehavior:
		res.Diagnosis.Report(os.Stderr)
		os.Exit(1)
	}
}
