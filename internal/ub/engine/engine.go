// Package engine executes programs: it owns the memory, the threads, and
// the scheduler, and it runs statements and terminators until the program
// exits, aborts, deadlocks, or trips undefined behavior.
//
// The engine keeps two failure channels strictly apart. Misbehavior of the
// interpreted program is a UB diagnosis carried as an error value and
// turned into an Outcome; a malformed machine state that only a bug in the
// engine or its caller can produce panics with an engine bug instead.
package engine

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/mem"
	"github.com/kolkov/ubcheck/internal/ub/thread"
)

// OutcomeKind classifies how a run ended.
type OutcomeKind uint8

const (
	// OutExit: the program called exit and passed the leak check.
	OutExit OutcomeKind = iota
	// OutAbort: the program aborted.
	OutAbort
	// OutUB: undefined behavior was diagnosed.
	OutUB
	// OutDeadlock: every remaining thread is blocked.
	OutDeadlock
)

// Outcome is the final result of a run.
type Outcome struct {
	Kind OutcomeKind
	Code int
	UB   *diag.UBError
}

// Config carries the machine policies and output streams.
type Config struct {
	Mem    mem.Config
	Stdout io.Writer
	Stderr io.Writer
}

// lock is one mutex created by the program. owner is -1 while free.
type lock struct {
	owner thread.ID
}

// Machine is one program execution in progress.
type Machine struct {
	prog    *ir.Program
	mem     *mem.Memory
	stdout  io.Writer
	stderr  io.Writer
	threads []*thread.Thread
	active  int
	locks   []lock
	done    *Outcome

	fnAddr map[ir.FnName]uint64
	fnAt   map[uint64]*ir.Function
}

// Function code addresses are synthetic: nonzero, aligned, and disjoint
// from data allocations (which the allocation table places much higher).
const fnAddrBase = 0x1000

// New prepares a machine for the program. The start function must take no
// arguments; a program violating that never came out of the loader.
func New(prog *ir.Program, cfg Config) *Machine {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	start, ok := prog.Functions[prog.Start]
	if !ok {
		diag.Bugf("machine: start function %s does not exist", prog.Start)
	}
	if len(start.Args) != 0 {
		diag.Bugf("machine: start function %s takes arguments", prog.Start)
	}

	m := &Machine{
		prog:   prog,
		mem:    mem.New(cfg.Mem),
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		fnAddr: make(map[ir.FnName]uint64, len(prog.Functions)),
		fnAt:   make(map[uint64]*ir.Function, len(prog.Functions)),
	}
	names := make([]string, 0, len(prog.Functions))
	for name := range prog.Functions {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for i, name := range names {
		addr := uint64(fnAddrBase + 16*i)
		m.fnAddr[ir.FnName(name)] = addr
		m.fnAt[addr] = prog.Functions[ir.FnName(name)]
	}

	main := thread.New(0, thread.NewFrame(start, thread.PopAction{Bottom: true}))
	m.threads = append(m.threads, main)
	m.allocRetLocal(main.CurFrame())
	return m
}

// Memory exposes the allocation table, mainly for tests and intrinsic
// extensions.
func (m *Machine) Memory() *mem.Memory { return m.mem }

// Run steps threads round-robin until the machine reaches an outcome.
// Each step executes one statement or one terminator of the active thread.
func (m *Machine) Run() Outcome {
	for m.done == nil {
		th := m.nextEnabled()
		if th == nil {
			return Outcome{Kind: OutDeadlock}
		}
		if err := m.step(th); err != nil {
			ub := diag.AsUB(err)
			if ub == nil {
				diag.Bugf("machine: non-UB error escaped a step: %v", err)
			}
			return Outcome{Kind: OutUB, UB: ub}
		}
	}
	return *m.done
}

// nextEnabled picks the next runnable thread after the previously active
// one, or nil when every live thread is blocked.
func (m *Machine) nextEnabled() *thread.Thread {
	n := len(m.threads)
	for i := 1; i <= n; i++ {
		th := m.threads[(m.active+i)%n]
		if th.State == thread.Enabled {
			m.active = int(th.ID)
			return th
		}
	}
	return nil
}

// step executes one statement or terminator of th, annotating any UB
// diagnosis with the position it was raised at.
func (m *Machine) step(th *thread.Thread) error {
	f := th.CurFrame()
	bb := f.CurBlock()
	var err error
	if f.Stmt < len(bb.Statements) {
		s := bb.Statements[f.Stmt]
		f.Stmt++
		err = m.execStatement(th, f, s)
	} else {
		err = m.execTerminator(th, f, bb.Term)
	}
	if ub := diag.AsUB(err); ub != nil && ub.Context == "" {
		return ub.In(fmt.Sprintf("thread %d, function %s, block %s", th.ID, f.Fn.Name, f.Block))
	}
	return err
}

// finish records the outcome that stops the run.
func (m *Machine) finish(o Outcome) {
	m.done = &o
}

// terminate marks th dead and wakes every thread joining on it.
func (m *Machine) terminate(th *thread.Thread) {
	th.State = thread.Terminated
	for _, other := range m.threads {
		if other.State == thread.BlockedOnJoin && other.JoinTarget == th.ID {
			other.State = thread.Enabled
		}
	}
}

// allocRetLocal gives a fresh frame the backing store for its return
// local; argument locals are populated by the caller, everything else
// starts dead.
func (m *Machine) allocRetLocal(f *thread.Frame) {
	if f.Fn.Ret == "" {
		return
	}
	m.allocLocal(f, f.Fn.Ret)
}

// allocLocal allocates stack storage for one local of f.
func (m *Machine) allocLocal(f *thread.Frame, name ir.LocalName) mem.Pointer {
	ty, ok := f.Fn.Locals[name]
	if !ok {
		diag.Bugf("machine: function %s has no local %s", f.Fn.Name, name)
	}
	lay := m.layoutOf(ty)
	p, err := m.mem.Allocate(mem.KindStack, lay.Size, lay.Align)
	if err != nil {
		diag.Bugf("machine: stack allocation failed: %v", err)
	}
	f.Locals[name] = p
	return p
}

// layoutOf resolves the layout of a sized type; an unsized type in a
// by-value position is malformed input.
func (m *Machine) layoutOf(t ir.Type) ir.Layout {
	lay, ok := t.Layout()
	if !ok {
		diag.Bugf("machine: unsized type used by value")
	}
	return lay
}
