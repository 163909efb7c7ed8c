// Package ub provides the public API for the undefined-behavior checker.
//
// See doc.go for detailed documentation and examples.
package ub

import (
	"io"

	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/engine"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/loader"
	"github.com/kolkov/ubcheck/internal/ub/mem"
)

// ResultKind classifies how an execution ended.
type ResultKind uint8

const (
	// Exit: the program exited cleanly and passed the leak check.
	Exit ResultKind = iota
	// Abort: the program called the abort intrinsic.
	Abort
	// UndefinedBehavior: the checker diagnosed undefined behavior.
	UndefinedBehavior
	// Deadlock: every remaining thread was blocked.
	Deadlock
)

// String returns the result kind name.
func (k ResultKind) String() string {
	switch k {
	case Exit:
		return "exit"
	case Abort:
		return "abort"
	case UndefinedBehavior:
		return "undefined behavior"
	default:
		return "deadlock"
	}
}

// Result is the outcome of executing a program.
type Result struct {
	Kind ResultKind
	// ExitCode is meaningful when Kind is Exit.
	ExitCode int
	// Diagnosis describes the violation when Kind is UndefinedBehavior.
	Diagnosis *Diagnosis
}

// Diagnosis is one undefined-behavior finding.
type Diagnosis struct {
	// Reason is the human-readable diagnosis.
	Reason string
	// Context names the position the violation was detected at.
	Context string
}

// Options configures an execution.
type Options struct {
	// AllowProtectedDeallocWithEmptyRange relaxes the deallocation rule:
	// a strongly protected pointer that has never been used to access any
	// byte does not forbid freeing its allocation.
	AllowProtectedDeallocWithEmptyRange bool

	// Stdout and Stderr receive the program's print output. They default
	// to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Check loads a program description and reports whether it is
// well-formed, without executing it.
func Check(r io.Reader) error {
	_, err := loader.Load(r)
	return err
}

// CheckFile is Check for a description file on disk.
func CheckFile(path string) error {
	_, err := loader.LoadFile(path)
	return err
}

// Run loads a program description and executes it.
//
// The returned error covers loading problems only; a program that loads
// always produces a Result, including when it trips undefined behavior.
func Run(r io.Reader, opts Options) (Result, error) {
	prog, err := loader.Load(r)
	if err != nil {
		return Result{}, err
	}
	return execute(prog, opts), nil
}

// RunFile is Run for a description file on disk.
func RunFile(path string, opts Options) (Result, error) {
	prog, err := loader.LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	return execute(prog, opts), nil
}

func execute(prog *ir.Program, opts Options) Result {
	cfg := engine.Config{Stdout: opts.Stdout, Stderr: opts.Stderr}
	if opts.AllowProtectedDeallocWithEmptyRange {
		cfg.Mem.ProtectedDealloc = mem.ProtectedDeallocAllowEmptyRange
	}
	switch o := engine.New(prog, cfg).Run(); o.Kind {
	case engine.OutExit:
		return Result{Kind: Exit, ExitCode: o.Code}
	case engine.OutAbort:
		return Result{Kind: Abort}
	case engine.OutDeadlock:
		return Result{Kind: Deadlock}
	default:
		return Result{
			Kind:      UndefinedBehavior,
			Diagnosis: &Diagnosis{Reason: o.UB.Reason, Context: o.UB.Context},
		}
	}
}

// Report writes a human-readable report of a diagnosis to w.
func (d *Diagnosis) Report(w io.Writer) {
	diag.Report(w, &diag.UBError{Reason: d.Reason, Context: d.Context})
}
