package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/mem"
	"github.com/kolkov/ubcheck/internal/ub/thread"
)

// execIntrinsic runs one intrinsic terminator: it dispatches the
// operation, stores the result into the return place, and resumes at the
// next block unless the machine stopped or the thread blocked. Declaring a
// return type the operation's result does not fit (including a return
// type on an operation that produces nothing) is UB, not a machine fault;
// the program picks the intrinsic signature, not the engine.
func (m *Machine) execIntrinsic(th *thread.Thread, f *thread.Frame, in ir.Intrinsic) error {
	ret, err := m.dispatchIntrinsic(th, f, in)
	if err != nil {
		return err
	}
	if m.done != nil {
		return nil
	}
	if in.RetType != nil {
		place, err := m.evalPlace(f, in.Ret)
		if err != nil {
			return err
		}
		lay := m.layoutOf(in.RetType)
		if uint64(len(ret)) != lay.Size {
			return diag.UB("intrinsic %s produces %d result bytes, the declared return type has %d",
				in.Op, len(ret), lay.Size)
		}
		if err := m.mem.Store(place, ret, lay.Align); err != nil {
			return err
		}
	}
	if in.Next == nil {
		return diag.UB("intrinsic %s has no next block", in.Op)
	}
	f.Jump(*in.Next)
	return nil
}

func (m *Machine) dispatchIntrinsic(th *thread.Thread, f *thread.Frame, in ir.Intrinsic) ([]mem.Byte, error) {
	switch in.Op {
	case ir.IntrinsicAllocate:
		if err := wantArgs(in, 2); err != nil {
			return nil, err
		}
		size, err := m.evalInt(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		align, err := m.evalInt(f, in.Args[1])
		if err != nil {
			return nil, err
		}
		if size < 0 || align < 0 {
			return nil, diag.UB("allocate with negative size or alignment")
		}
		p, err := m.mem.Allocate(mem.KindHeap, uint64(size), uint64(align))
		if err != nil {
			return nil, err
		}
		return mem.EncodePointer(p), nil

	case ir.IntrinsicDeallocate:
		if err := wantArgs(in, 3); err != nil {
			return nil, err
		}
		p, err := m.evalPointer(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		size, err := m.evalInt(f, in.Args[1])
		if err != nil {
			return nil, err
		}
		align, err := m.evalInt(f, in.Args[2])
		if err != nil {
			return nil, err
		}
		if size < 0 || align < 0 {
			return nil, diag.UB("deallocate with negative size or alignment")
		}
		return nil, m.mem.Deallocate(p, mem.KindHeap, uint64(size), uint64(align))

	case ir.IntrinsicExit:
		code := int64(0)
		if len(in.Args) > 0 {
			var err error
			if code, err = m.evalInt(f, in.Args[0]); err != nil {
				return nil, err
			}
		}
		if err := m.mem.LeakCheck(); err != nil {
			return nil, err
		}
		m.finish(Outcome{Kind: OutExit, Code: int(code)})
		return nil, nil

	case ir.IntrinsicAbort:
		m.finish(Outcome{Kind: OutAbort})
		return nil, nil

	case ir.IntrinsicSpawn:
		return m.intrinsicSpawn(f, in)

	case ir.IntrinsicJoin:
		if err := wantArgs(in, 1); err != nil {
			return nil, err
		}
		id, err := m.evalInt(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		if id < 0 || int(id) >= len(m.threads) {
			return nil, diag.UB("joining thread %d which does not exist", id)
		}
		if thread.ID(id) == th.ID {
			return nil, diag.UB("a thread cannot join itself")
		}
		if m.threads[id].State != thread.Terminated {
			th.State = thread.BlockedOnJoin
			th.JoinTarget = thread.ID(id)
		}
		return nil, nil

	case ir.IntrinsicPrintStdout:
		return nil, m.print(m.stdout, f, in.Args)
	case ir.IntrinsicPrintStderr:
		return nil, m.print(m.stderr, f, in.Args)

	case ir.IntrinsicGetUnwindPayload:
		p, ok := th.PeekPayload()
		if !ok {
			return nil, diag.UB("get_unwind_payload with no unwind in flight")
		}
		return mem.EncodePointer(p), nil

	case ir.IntrinsicAssume:
		if err := wantArgs(in, 1); err != nil {
			return nil, err
		}
		b, err := m.evalValue(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		v, ok := mem.DecodeBool(b)
		if !ok {
			return nil, diag.UB("assume on an invalid boolean")
		}
		if !v {
			return nil, diag.UB("assumption violated")
		}
		return nil, nil

	case ir.IntrinsicRawEq:
		return m.intrinsicRawEq(f, in)

	case ir.IntrinsicAtomicLoad:
		if err := wantArgs(in, 1); err != nil {
			return nil, err
		}
		if in.RetType == nil {
			return nil, diag.UB("atomic_load without a return type")
		}
		lay := m.layoutOf(in.RetType)
		if err := checkAtomicSize(lay.Size); err != nil {
			return nil, err
		}
		p, err := m.evalPointer(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		return m.mem.Load(p, lay.Size, lay.Size)

	case ir.IntrinsicAtomicStore:
		if err := wantArgs(in, 2); err != nil {
			return nil, err
		}
		p, err := m.evalPointer(f, in.Args[0])
		if err != nil {
			return nil, err
		}
		lay := m.layoutOf(staticType(in.Args[1]))
		if err := checkAtomicSize(lay.Size); err != nil {
			return nil, err
		}
		b, err := m.evalValue(f, in.Args[1])
		if err != nil {
			return nil, err
		}
		return nil, m.mem.Store(p, b, lay.Size)

	case ir.IntrinsicLockCreate:
		m.locks = append(m.locks, lock{owner: -1})
		return mem.EncodeUint(uint64(len(m.locks)-1), 8), nil

	case ir.IntrinsicLockAcquire:
		id, err := m.lockArg(f, in)
		if err != nil {
			return nil, err
		}
		l := &m.locks[id]
		if l.owner == -1 {
			l.owner = th.ID
			return nil, nil
		}
		th.State = thread.BlockedOnLock
		th.LockTarget = int(id)
		return nil, nil

	case ir.IntrinsicLockRelease:
		id, err := m.lockArg(f, in)
		if err != nil {
			return nil, err
		}
		l := &m.locks[id]
		if l.owner != th.ID {
			return nil, diag.UB("releasing lock %d which the thread does not hold", id)
		}
		// Hand the lock to the longest-waiting blocked thread, if any.
		l.owner = -1
		for _, other := range m.threads {
			if other.State == thread.BlockedOnLock && other.LockTarget == int(id) {
				l.owner = other.ID
				other.State = thread.Enabled
				break
			}
		}
		return nil, nil

	default:
		diag.Bugf("machine: unknown intrinsic %s", in.Op)
		return nil, nil
	}
}

func wantArgs(in ir.Intrinsic, n int) error {
	if len(in.Args) != n {
		return diag.UB("intrinsic %s expects %d arguments, got %d", in.Op, n, len(in.Args))
	}
	return nil
}

func checkAtomicSize(size uint64) error {
	if size == 0 || size > 8 || size&(size-1) != 0 {
		return diag.UB("invalid size %d for an atomic access", size)
	}
	return nil
}

func (m *Machine) lockArg(f *thread.Frame, in ir.Intrinsic) (int64, error) {
	if err := wantArgs(in, 1); err != nil {
		return 0, err
	}
	id, err := m.evalInt(f, in.Args[0])
	if err != nil {
		return 0, err
	}
	if id < 0 || int(id) >= len(m.locks) {
		return 0, diag.UB("lock %d does not exist", id)
	}
	return id, nil
}

// intrinsicSpawn starts a new thread running the given function with one
// pointer-sized argument and returns the new thread's id.
func (m *Machine) intrinsicSpawn(f *thread.Frame, in ir.Intrinsic) ([]mem.Byte, error) {
	if err := wantArgs(in, 2); err != nil {
		return nil, err
	}
	callee, err := m.evalPointer(f, in.Args[0])
	if err != nil {
		return nil, err
	}
	fn, ok := m.fnAt[callee.Addr]
	if !ok {
		return nil, diag.UB("spawning a pointer that does not point to a function")
	}
	if len(fn.Args) != 1 {
		return nil, diag.UB("spawned function %s must take exactly one argument", fn.Name)
	}
	if !ir.AbiCompatible(staticType(in.Args[1]), fn.Locals[fn.Args[0]]) {
		return nil, diag.UB("ABI mismatch in the argument of spawned function %s", fn.Name)
	}
	data, err := m.evalValue(f, in.Args[1])
	if err != nil {
		return nil, err
	}

	id := thread.ID(len(m.threads))
	nt := &thread.Thread{ID: id}
	m.threads = append(m.threads, nt)
	if err := m.pushFrame(nt, fn, [][]mem.Byte{data}, thread.PopAction{Bottom: true}); err != nil {
		return nil, err
	}
	return mem.EncodeUint(uint64(id), 8), nil
}

// intrinsicRawEq compares n bytes behind two pointers. Both ranges are
// read through their tags; comparing uninitialized memory is UB.
func (m *Machine) intrinsicRawEq(f *thread.Frame, in ir.Intrinsic) ([]mem.Byte, error) {
	if err := wantArgs(in, 3); err != nil {
		return nil, err
	}
	pa, err := m.evalPointer(f, in.Args[0])
	if err != nil {
		return nil, err
	}
	pb, err := m.evalPointer(f, in.Args[1])
	if err != nil {
		return nil, err
	}
	n, err := m.evalInt(f, in.Args[2])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, diag.UB("raw_eq with a negative length")
	}
	ba, err := m.mem.Load(pa, uint64(n), 1)
	if err != nil {
		return nil, err
	}
	bb, err := m.mem.Load(pb, uint64(n), 1)
	if err != nil {
		return nil, err
	}
	eq := true
	for i := range ba {
		if !ba[i].Init || !bb[i].Init {
			return nil, diag.UB("raw_eq on uninitialized memory")
		}
		if ba[i].Val != bb[i].Val {
			eq = false
		}
	}
	return mem.EncodeBool(eq), nil
}

// print renders each argument at its static type, space separated, one
// line per intrinsic call.
func (m *Machine) print(w io.Writer, f *thread.Frame, args []ir.ValueExpr) error {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		b, err := m.evalValue(f, a)
		if err != nil {
			return err
		}
		s, err := formatValue(staticType(a), b)
		if err != nil {
			return err
		}
		parts = append(parts, s)
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
	return nil
}

func formatValue(t ir.Type, b []mem.Byte) (string, error) {
	switch ty := t.(type) {
	case ir.IntType:
		if ty.Signed {
			v, ok := mem.DecodeInt(b)
			if !ok {
				return "", diag.UB("printing an uninitialized integer")
			}
			return fmt.Sprintf("%d", v), nil
		}
		v, ok := mem.DecodeUint(b)
		if !ok {
			return "", diag.UB("printing an uninitialized integer")
		}
		return fmt.Sprintf("%d", v), nil
	case ir.BoolType:
		v, ok := mem.DecodeBool(b)
		if !ok {
			return "", diag.UB("printing an invalid boolean")
		}
		return fmt.Sprintf("%t", v), nil
	case ir.PtrType:
		p, ok := mem.DecodePointer(b[:mem.PtrBytes])
		if !ok {
			return "", diag.UB("printing an invalid pointer")
		}
		return fmt.Sprintf("%#x", p.Addr), nil
	default:
		return "", diag.UB("printing a value of unprintable type")
	}
}
