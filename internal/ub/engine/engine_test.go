package engine

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/thread"
)

var (
	u64 = ir.IntType{Size: 8}
	i32 = ir.IntType{Signed: true, Size: 4}
)

func rawPtr() ir.PtrType { return ir.PtrType{Kind: ir.Raw} }

func mutRef(size, align uint64) ir.PtrType {
	return ir.PtrType{
		Kind:    ir.Ref,
		Mutable: true,
		Pointee: &ir.PointeeInfo{Layout: ir.Layout{Size: size, Align: align}},
	}
}

func bb(name string) *ir.BbName {
	n := ir.BbName(name)
	return &n
}

func load(local string, t ir.Type) ir.ValueExpr {
	return ir.Load{Place: ir.Local{Name: ir.LocalName(local)}, Type: t}
}

func deref(p ir.ValueExpr, t ir.Type) ir.PlaceExpr {
	return ir.Deref{Value: p, Type: t}
}

func cint(v int64, t ir.IntType) ir.ValueExpr {
	return ir.ConstInt{Value: v, Type: t}
}

func run(t *testing.T, prog *ir.Program) (Outcome, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	m := New(prog, Config{Stdout: &out, Stderr: &errOut})
	o := m.Run()
	return o, out.String()
}

// exitBlocks appends the blocks every test program ends with: print the given
// value (when non-nil), then exit.
func exitBlocks(fn *ir.Function, printArg ir.ValueExpr) {
	if printArg != nil {
		fn.Blocks["print"] = &ir.BasicBlock{
			Term: ir.Intrinsic{Op: ir.IntrinsicPrintStdout, Args: []ir.ValueExpr{printArg}, Next: bb("exit")},
		}
	}
	fn.Blocks["exit"] = &ir.BasicBlock{
		Term: ir.Intrinsic{Op: ir.IntrinsicExit},
	}
}

func singleFn(fn *ir.Function) *ir.Program {
	return &ir.Program{Functions: map[ir.FnName]*ir.Function{fn.Name: fn}, Start: fn.Name}
}

func TestExitOutcome(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "exit",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{},
	}
	exitBlocks(main, nil)
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutExit, o.Kind)
	assert.Equal(t, 0, o.Code)
}

func TestStartFunctionMustNotReturn(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{"bb0": {Term: ir.Return{}}},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "start function returned")
}

func TestUnreachableIsUB(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{"bb0": {Term: ir.Unreachable{}}},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "unreachable")
}

func TestSwitchPicksCaseAndFallback(t *testing.T) {
	for _, tc := range []struct {
		name  string
		sel   int64
		print string
	}{
		{"matching case", 1, "10"},
		{"fallback", 9, "99"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			main := &ir.Function{
				Name:   "main",
				Start:  "bb0",
				Locals: map[ir.LocalName]ir.Type{},
				Blocks: map[ir.BbName]*ir.BasicBlock{
					"bb0": {Term: ir.Switch{
						Value:    cint(tc.sel, i32),
						Cases:    []ir.SwitchCase{{Value: 1, Target: "one"}},
						Fallback: "other",
					}},
					"one": {Term: ir.Intrinsic{
						Op: ir.IntrinsicPrintStdout, Args: []ir.ValueExpr{cint(10, i32)}, Next: bb("exit"),
					}},
					"other": {Term: ir.Intrinsic{
						Op: ir.IntrinsicPrintStdout, Args: []ir.ValueExpr{cint(99, i32)}, Next: bb("exit"),
					}},
				},
			}
			exitBlocks(main, nil)
			o, out := run(t, singleFn(main))
			require.Equal(t, OutExit, o.Kind)
			assert.Equal(t, tc.print+"\n", out)
		})
	}
}

func TestDoubleStorageLiveIsUB(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"x": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.StorageLive{Local: "x"},
					ir.StorageLive{Local: "x"},
				},
				Term: ir.Return{},
			},
		},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "already live")
}

func TestHeapUseAfterFreeIsUB(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "alloc",
		Locals: map[ir.LocalName]ir.Type{"p": rawPtr()},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"alloc": {
				Statements: []ir.Statement{ir.StorageLive{Local: "p"}},
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicAllocate,
					Args:    []ir.ValueExpr{cint(8, u64), cint(8, u64)},
					Ret:     ir.Local{Name: "p"},
					RetType: rawPtr(),
					Next:    bb("free"),
				},
			},
			"free": {
				Term: ir.Intrinsic{
					Op:   ir.IntrinsicDeallocate,
					Args: []ir.ValueExpr{load("p", rawPtr()), cint(8, u64), cint(8, u64)},
					Next: bb("use"),
				},
			},
			"use": {
				Statements: []ir.Statement{
					ir.Assign{Dest: deref(load("p", rawPtr()), u64), Src: cint(1, u64), Type: u64},
				},
				Term: ir.Return{},
			},
		},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "dangling")
}

func TestLeakedHeapAllocationFailsExit(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "alloc",
		Locals: map[ir.LocalName]ir.Type{"p": rawPtr()},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"alloc": {
				Statements: []ir.Statement{ir.StorageLive{Local: "p"}},
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicAllocate,
					Args:    []ir.ValueExpr{cint(8, u64), cint(8, u64)},
					Ret:     ir.Local{Name: "p"},
					RetType: rawPtr(),
					Next:    bb("exit"),
				},
			},
		},
	}
	exitBlocks(main, nil)
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "leaked")
}

// TestCallReturnRoundTrip passes a constant through an identity function
// and observes it unchanged in the caller.
func TestCallReturnRoundTrip(t *testing.T) {
	ident := &ir.Function{
		Name:   "ident",
		Args:   []ir.LocalName{"x"},
		Ret:    "r",
		Locals: map[ir.LocalName]ir.Type{"x": u64, "r": u64},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.Assign{Dest: ir.Local{Name: "r"}, Src: load("x", u64), Type: u64},
				},
				Term: ir.Return{},
			},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"t": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{ir.StorageLive{Local: "t"}},
				Term: ir.Call{
					Callee:  ir.FnPtr{Fn: "ident"},
					Args:    []ir.ArgumentExpr{ir.ByValue{Value: cint(7, u64), Type: u64}},
					Ret:     ir.Local{Name: "t"},
					RetType: u64,
					Next:    bb("print"),
				},
			},
		},
	}
	exitBlocks(main, load("t", u64))
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "ident": ident},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutExit, o.Kind, "outcome: %+v", o)
	assert.Equal(t, "7\n", out)
}

// TestCallAbiMismatchPrecedesCallee checks that an incompatible argument
// is diagnosed before the callee runs a single step.
func TestCallAbiMismatchPrecedesCallee(t *testing.T) {
	noisy := &ir.Function{
		Name:   "noisy",
		Args:   []ir.LocalName{"x"},
		Locals: map[ir.LocalName]ir.Type{"x": u64},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Intrinsic{
				Op: ir.IntrinsicPrintStdout, Args: []ir.ValueExpr{cint(1, i32)}, Next: bb("bb1"),
			}},
			"bb1": {Term: ir.Return{}},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Call{
				Callee: ir.FnPtr{Fn: "noisy"},
				Args:   []ir.ArgumentExpr{ir.ByValue{Value: cint(1, i32), Type: i32}},
				Next:   bb("exit"),
			}},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "noisy": noisy},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "ABI mismatch")
	assert.Empty(t, out, "callee must not have run")
}

// TestCallReturnAbiMismatchPrecedesCallee calls a function whose return
// type is incompatible with the call site's and checks the mismatch is
// diagnosed before the callee runs a single step.
func TestCallReturnAbiMismatchPrecedesCallee(t *testing.T) {
	small := &ir.Function{
		Name:   "small",
		Ret:    "r",
		Locals: map[ir.LocalName]ir.Type{"r": i32},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Intrinsic{
				Op: ir.IntrinsicPrintStdout, Args: []ir.ValueExpr{cint(1, i32)}, Next: bb("bb1"),
			}},
			"bb1": {
				Statements: []ir.Statement{
					ir.Assign{Dest: ir.Local{Name: "r"}, Src: cint(1, i32), Type: i32},
				},
				Term: ir.Return{},
			},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"t": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{ir.StorageLive{Local: "t"}},
				Term: ir.Call{
					Callee:  ir.FnPtr{Fn: "small"},
					Ret:     ir.Local{Name: "t"},
					RetType: u64,
					Next:    bb("exit"),
				},
			},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "small": small},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "return ABI mismatch")
	assert.Empty(t, out, "callee must not have run")
}

// TestCallRetPlaceDeinitPrecedesArgs pins the call-site evaluation order:
// the return place is de-initialized before the arguments are read. The
// de-init here goes through a reborrowed tag, which disables the local's
// original tag, so the subsequent argument load is diagnosed.
func TestCallRetPlaceDeinitPrecedesArgs(t *testing.T) {
	ref := mutRef(8, 8)
	ident := &ir.Function{
		Name:   "ident",
		Args:   []ir.LocalName{"x"},
		Ret:    "r",
		Locals: map[ir.LocalName]ir.Type{"x": u64, "r": u64},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.Assign{Dest: ir.Local{Name: "r"}, Src: load("x", u64), Type: u64},
				},
				Term: ir.Return{},
			},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"x": u64, "q": ref},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.StorageLive{Local: "x"},
					ir.StorageLive{Local: "q"},
					ir.Assign{Dest: ir.Local{Name: "x"}, Src: cint(7, u64), Type: u64},
					ir.Assign{
						Dest: ir.Local{Name: "q"},
						Src:  ir.AddrOf{Place: ir.Local{Name: "x"}, Type: ref},
						Type: ref,
					},
					ir.Validate{Place: ir.Local{Name: "q"}, Type: ref},
				},
				Term: ir.Call{
					Callee:  ir.FnPtr{Fn: "ident"},
					Args:    []ir.ArgumentExpr{ir.ByValue{Value: load("x", u64), Type: u64}},
					Ret:     deref(load("q", ref), u64),
					RetType: u64,
					Next:    bb("exit"),
				},
			},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "ident": ident},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "Disabled")
	assert.Empty(t, out)
}

func TestCallingConventionMismatchIsUB(t *testing.T) {
	ffi := &ir.Function{
		Name:   "ffi",
		Conv:   ir.ConvC,
		Locals: map[ir.LocalName]ir.Type{},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{"bb0": {Term: ir.Return{}}},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Call{
				Callee: ir.FnPtr{Fn: "ffi"},
				Conv:   ir.ConvRust,
				Next:   bb("exit"),
			}},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "ffi": ffi},
		Start:     "main",
	}
	o, _ := run(t, prog)
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "calling convention mismatch")
}

// TestProtectorViolation retags a pointer at function entry, writes
// through it, then reborrows and writes again: the second write hits the
// strongly protected tag from a foreign node.
func TestProtectorViolation(t *testing.T) {
	ref := mutRef(8, 8)
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"x": u64, "q": ref},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.StorageLive{Local: "x"},
					ir.StorageLive{Local: "q"},
					ir.Assign{Dest: ir.Local{Name: "x"}, Src: cint(0, u64), Type: u64},
					ir.Assign{
						Dest: ir.Local{Name: "q"},
						Src:  ir.AddrOf{Place: ir.Local{Name: "x"}, Type: ref},
						Type: ref,
					},
					ir.Validate{Place: ir.Local{Name: "q"}, Type: ref, FnEntry: true},
					ir.Assign{Dest: deref(load("q", ref), u64), Src: cint(1, u64), Type: u64},
					ir.Validate{Place: ir.Local{Name: "q"}, Type: ref},
					ir.Assign{Dest: deref(load("q", ref), u64), Src: cint(2, u64), Type: u64},
				},
				Term: ir.Return{},
			},
		},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "strongly protected")
}

// TestSpawnJoin spawns a worker that writes through a shared pointer and
// joins it before reading the result.
func TestSpawnJoin(t *testing.T) {
	worker := &ir.Function{
		Name:   "worker",
		Args:   []ir.LocalName{"x"},
		Locals: map[ir.LocalName]ir.Type{"x": rawPtr()},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{
					ir.Assign{Dest: deref(load("x", rawPtr()), u64), Src: cint(1, u64), Type: u64},
				},
				Term: ir.Return{},
			},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "alloc",
		Locals: map[ir.LocalName]ir.Type{"p": rawPtr(), "tid": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"alloc": {
				Statements: []ir.Statement{
					ir.StorageLive{Local: "p"},
					ir.StorageLive{Local: "tid"},
				},
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicAllocate,
					Args:    []ir.ValueExpr{cint(8, u64), cint(8, u64)},
					Ret:     ir.Local{Name: "p"},
					RetType: rawPtr(),
					Next:    bb("spawn"),
				},
			},
			"spawn": {
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicSpawn,
					Args:    []ir.ValueExpr{ir.FnPtr{Fn: "worker"}, load("p", rawPtr())},
					Ret:     ir.Local{Name: "tid"},
					RetType: u64,
					Next:    bb("join"),
				},
			},
			"join": {
				Term: ir.Intrinsic{
					Op:   ir.IntrinsicJoin,
					Args: []ir.ValueExpr{load("tid", u64)},
					Next: bb("print"),
				},
			},
			"print": {
				Term: ir.Intrinsic{
					Op:   ir.IntrinsicPrintStdout,
					Args: []ir.ValueExpr{ir.Load{Place: deref(load("p", rawPtr()), u64), Type: u64}},
					Next: bb("free"),
				},
			},
			"free": {
				Term: ir.Intrinsic{
					Op:   ir.IntrinsicDeallocate,
					Args: []ir.ValueExpr{load("p", rawPtr()), cint(8, u64), cint(8, u64)},
					Next: bb("exit"),
				},
			},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "worker": worker},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutExit, o.Kind, "outcome: %+v", o)
	assert.Equal(t, "1\n", out)
}

// hopFn builds a function that runs through the given number of goto
// blocks before returning, to keep a spawned thread busy for a known
// number of steps.
func hopFn(name string, hops int) *ir.Function {
	fn := &ir.Function{
		Name:   ir.FnName(name),
		Args:   []ir.LocalName{"x"},
		Locals: map[ir.LocalName]ir.Type{"x": u64},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{},
	}
	for i := 0; i < hops; i++ {
		fn.Blocks[ir.BbName(fmt.Sprintf("bb%d", i))] = &ir.BasicBlock{
			Term: ir.Goto{Target: ir.BbName(fmt.Sprintf("bb%d", i+1))},
		}
	}
	fn.Blocks[ir.BbName(fmt.Sprintf("bb%d", hops))] = &ir.BasicBlock{Term: ir.Return{}}
	return fn
}

// TestJoinWakesAtTargetTermination steps the scheduler by hand: the
// joining thread stays blocked through every step an unrelated thread
// takes, and becomes runnable exactly at the step where the joined
// thread's bottom frame returns.
func TestJoinWakesAtTargetTermination(t *testing.T) {
	worker := hopFn("worker", 6)
	spinner := hopFn("spinner", 12)
	main := &ir.Function{
		Name:   "main",
		Start:  "spawn_worker",
		Locals: map[ir.LocalName]ir.Type{"w": u64, "s": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"spawn_worker": {
				Statements: []ir.Statement{
					ir.StorageLive{Local: "w"},
					ir.StorageLive{Local: "s"},
				},
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicSpawn,
					Args:    []ir.ValueExpr{ir.FnPtr{Fn: "worker"}, cint(0, u64)},
					Ret:     ir.Local{Name: "w"},
					RetType: u64,
					Next:    bb("spawn_spinner"),
				},
			},
			"spawn_spinner": {
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicSpawn,
					Args:    []ir.ValueExpr{ir.FnPtr{Fn: "spinner"}, cint(0, u64)},
					Ret:     ir.Local{Name: "s"},
					RetType: u64,
					Next:    bb("join"),
				},
			},
			"join": {
				Term: ir.Intrinsic{
					Op:   ir.IntrinsicJoin,
					Args: []ir.ValueExpr{load("w", u64)},
					Next: bb("exit"),
				},
			},
		},
	}
	exitBlocks(main, nil)
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "worker": worker, "spinner": spinner},
		Start:     "main",
	}

	var out, errOut bytes.Buffer
	m := New(prog, Config{Stdout: &out, Stderr: &errOut})
	blocked := false
	spinnerSteps := 0
	for m.done == nil {
		th := m.nextEnabled()
		require.NotNil(t, th)
		require.NoError(t, m.step(th))
		if m.threads[0].State == thread.BlockedOnJoin {
			blocked = true
			require.NotEqual(t, thread.Terminated, m.threads[1].State,
				"joiner still blocked after the worker terminated")
			if th.ID == 2 {
				spinnerSteps++
			}
		}
		if len(m.threads) > 1 && m.threads[1].State == thread.Terminated {
			require.Equal(t, thread.Enabled, m.threads[0].State,
				"joiner must wake at the worker's terminating step")
		}
	}
	require.Equal(t, OutExit, m.done.Kind)
	assert.True(t, blocked, "main never blocked on the join")
	assert.Positive(t, spinnerSteps, "the unrelated thread never ran while main was blocked")
}

func TestSelfLockDeadlock(t *testing.T) {
	acquire := func(next string) ir.Intrinsic {
		return ir.Intrinsic{
			Op:   ir.IntrinsicLockAcquire,
			Args: []ir.ValueExpr{load("l", u64)},
			Next: bb(next),
		}
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "create",
		Locals: map[ir.LocalName]ir.Type{"l": u64},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"create": {
				Statements: []ir.Statement{ir.StorageLive{Local: "l"}},
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicLockCreate,
					Ret:     ir.Local{Name: "l"},
					RetType: u64,
					Next:    bb("first"),
				},
			},
			"first":  {Term: acquire("second")},
			"second": {Term: acquire("exit")},
		},
	}
	exitBlocks(main, nil)
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutDeadlock, o.Kind)
}

// TestUnwindAcrossCall unwinds out of a callee into the caller's catch
// block, reads the payload there, and stops the unwind.
func TestUnwindAcrossCall(t *testing.T) {
	thrower := &ir.Function{
		Name:   "thrower",
		Locals: map[ir.LocalName]ir.Type{},
		Start:  "bb0",
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.StartUnwind{
				Payload: cint(0xbeef, u64),
				Target:  "cl",
			}},
			"cl": {Kind: ir.BbCleanup, Term: ir.ResumeUnwind{}},
		},
	}
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{"pl": rawPtr()},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {
				Statements: []ir.Statement{ir.StorageLive{Local: "pl"}},
				Term: ir.Call{
					Callee: ir.FnPtr{Fn: "thrower"},
					Next:   bb("exit"),
					Unwind: bb("catch"),
				},
			},
			"catch": {
				Kind: ir.BbCatch,
				Term: ir.Intrinsic{
					Op:      ir.IntrinsicGetUnwindPayload,
					Ret:     ir.Local{Name: "pl"},
					RetType: rawPtr(),
					Next:    bb("stop"),
				},
			},
			"stop": {Kind: ir.BbCatch, Term: ir.StopUnwind{Target: "print"}},
		},
	}
	exitBlocks(main, load("pl", rawPtr()))
	prog := &ir.Program{
		Functions: map[ir.FnName]*ir.Function{"main": main, "thrower": thrower},
		Start:     "main",
	}
	o, out := run(t, prog)
	require.Equal(t, OutExit, o.Kind, "outcome: %+v", o)
	assert.Equal(t, "0xbeef\n", out)
}

// TestUnwindPastBottomIsUB unwinds out of the start function.
func TestUnwindPastBottomIsUB(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.StartUnwind{Payload: cint(0, u64), Target: "cl"}},
			"cl":  {Kind: ir.BbCleanup, Term: ir.ResumeUnwind{}},
		},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "bottom of the stack")
}

func TestAbortIntrinsic(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Intrinsic{Op: ir.IntrinsicAbort}},
		},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutAbort, o.Kind)
}

func TestAssume(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "bb0",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{
			"bb0": {Term: ir.Intrinsic{
				Op:   ir.IntrinsicAssume,
				Args: []ir.ValueExpr{ir.ConstBool{Value: false}},
				Next: bb("exit"),
			}},
		},
	}
	exitBlocks(main, nil)
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Reason, "assumption violated")
}

// TestIntrinsicReturnSignatureIsUB declares return types the intrinsic
// results cannot fill: a return place on an operation producing nothing,
// and a too-small return type on one producing a value.
func TestIntrinsicReturnSignatureIsUB(t *testing.T) {
	for _, tc := range []struct {
		name string
		term ir.Intrinsic
	}{
		{"result on assume", ir.Intrinsic{
			Op:      ir.IntrinsicAssume,
			Args:    []ir.ValueExpr{ir.ConstBool{Value: true}},
			Ret:     ir.Local{Name: "r"},
			RetType: u64,
			Next:    bb("exit"),
		}},
		{"wrong size on lock_create", ir.Intrinsic{
			Op:      ir.IntrinsicLockCreate,
			Ret:     ir.Local{Name: "r"},
			RetType: i32,
			Next:    bb("exit"),
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			main := &ir.Function{
				Name:   "main",
				Start:  "bb0",
				Locals: map[ir.LocalName]ir.Type{"r": u64},
				Blocks: map[ir.BbName]*ir.BasicBlock{
					"bb0": {
						Statements: []ir.Statement{ir.StorageLive{Local: "r"}},
						Term:       tc.term,
					},
				},
			}
			exitBlocks(main, nil)
			o, _ := run(t, singleFn(main))
			require.Equal(t, OutUB, o.Kind)
			assert.Contains(t, o.UB.Reason, "return type")
		})
	}
}

func TestUBCarriesPosition(t *testing.T) {
	main := &ir.Function{
		Name:   "main",
		Start:  "boom",
		Locals: map[ir.LocalName]ir.Type{},
		Blocks: map[ir.BbName]*ir.BasicBlock{"boom": {Term: ir.Unreachable{}}},
	}
	o, _ := run(t, singleFn(main))
	require.Equal(t, OutUB, o.Kind)
	assert.Contains(t, o.UB.Context, "function main")
	assert.Contains(t, o.UB.Context, "block boom")
}
