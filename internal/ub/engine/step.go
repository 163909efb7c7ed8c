package engine

import (
	"sort"

	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/mem"
	"github.com/kolkov/ubcheck/internal/ub/thread"
)

func (m *Machine) execStatement(th *thread.Thread, f *thread.Frame, s ir.Statement) error {
	switch st := s.(type) {
	case ir.Assign:
		src, err := m.evalValue(f, st.Src)
		if err != nil {
			return err
		}
		dest, err := m.evalPlace(f, st.Dest)
		if err != nil {
			return err
		}
		lay := m.layoutOf(st.Type)
		if uint64(len(src)) != lay.Size {
			diag.Bugf("machine: assigning %d bytes at a type of size %d", len(src), lay.Size)
		}
		return m.mem.Store(dest, src, lay.Align)

	case ir.StorageLive:
		if _, live := f.Locals[st.Local]; live {
			return diag.UB("StorageLive on local %s which is already live", st.Local)
		}
		m.allocLocal(f, st.Local)
		return nil

	case ir.StorageDead:
		p, live := f.Locals[st.Local]
		if !live {
			return diag.UB("StorageDead on local %s which is not live", st.Local)
		}
		lay := m.layoutOf(f.Fn.Locals[st.Local])
		if err := m.mem.Deallocate(p, mem.KindStack, lay.Size, lay.Align); err != nil {
			return err
		}
		delete(f.Locals, st.Local)
		return nil

	case ir.Validate:
		place, err := m.evalPlace(f, st.Place)
		if err != nil {
			return err
		}
		lay := m.layoutOf(st.Type)
		b, err := m.mem.Load(place, lay.Size, lay.Align)
		if err != nil {
			return err
		}
		p, ok := mem.DecodePointer(b[:mem.PtrBytes])
		if !ok {
			return diag.UB("validating an invalid pointer value")
		}
		q, err := m.mem.Retag(p, st.Type, st.FnEntry, f)
		if err != nil {
			return err
		}
		copy(b, mem.EncodePointer(q))
		return m.mem.Store(place, b, lay.Align)

	default:
		diag.Bugf("machine: unknown statement %T", s)
		return nil
	}
}

func (m *Machine) execTerminator(th *thread.Thread, f *thread.Frame, t ir.Terminator) error {
	switch tm := t.(type) {
	case ir.Goto:
		f.Jump(tm.Target)
		return nil

	case ir.Switch:
		v, err := m.evalInt(f, tm.Value)
		if err != nil {
			return err
		}
		for _, c := range tm.Cases {
			if c.Value == v {
				f.Jump(c.Target)
				return nil
			}
		}
		f.Jump(tm.Fallback)
		return nil

	case ir.Unreachable:
		return diag.UB("reached an unreachable terminator")

	case ir.Call:
		return m.execCall(th, f, tm)

	case ir.Return:
		return m.execReturn(th)

	case ir.StartUnwind:
		payload, err := m.evalPointer(f, tm.Payload)
		if err != nil {
			return err
		}
		th.PushPayload(payload)
		f.Jump(tm.Target)
		return nil

	case ir.StopUnwind:
		if _, ok := th.PopPayload(); !ok {
			return diag.UB("StopUnwind with no unwind in flight")
		}
		f.Jump(tm.Target)
		return nil

	case ir.ResumeUnwind:
		return m.execResumeUnwind(th)

	case ir.Intrinsic:
		return m.execIntrinsic(th, f, tm)

	default:
		diag.Bugf("machine: unknown terminator %T", t)
		return nil
	}
}

// execCall evaluates the call site in order: the return place is evaluated
// and de-initialized first, then the callee is resolved, then the argument
// sources are read (and in-place sources consumed) strictly left to right.
// The de-init is a write access, so argument loads that alias the return
// place observe it. Every mismatch (convention, arity, argument or return
// ABI) is diagnosed before the callee executes its first step.
func (m *Machine) execCall(th *thread.Thread, f *thread.Frame, c ir.Call) error {
	pop := thread.PopAction{Next: c.Next, Unwind: c.Unwind}
	if c.RetType != nil {
		ret, err := m.evalPlace(f, c.Ret)
		if err != nil {
			return err
		}
		lay := m.layoutOf(c.RetType)
		if err := m.mem.Deinit(ret, lay.Size, lay.Align); err != nil {
			return err
		}
		pop.Ret = ret
		pop.RetType = c.RetType
	}

	callee, err := m.evalPointer(f, c.Callee)
	if err != nil {
		return err
	}
	fn, ok := m.fnAt[callee.Addr]
	if !ok {
		return diag.UB("calling a pointer that does not point to a function")
	}
	if c.Conv != fn.Conv {
		return diag.UB("calling convention mismatch: call site is %s, function %s is %s",
			c.Conv, fn.Name, fn.Conv)
	}
	if len(c.Args) != len(fn.Args) {
		return diag.UB("argument count mismatch: %d passed, function %s takes %d",
			len(c.Args), fn.Name, len(fn.Args))
	}

	args := make([][]mem.Byte, len(c.Args))
	for i, a := range c.Args {
		switch arg := a.(type) {
		case ir.ByValue:
			if !ir.AbiCompatible(arg.Type, fn.Locals[fn.Args[i]]) {
				return diag.UB("ABI mismatch in argument %d of call to %s", i, fn.Name)
			}
			b, err := m.evalValue(f, arg.Value)
			if err != nil {
				return err
			}
			args[i] = b
		case ir.InPlace:
			if !ir.AbiCompatible(arg.Type, fn.Locals[fn.Args[i]]) {
				return diag.UB("ABI mismatch in argument %d of call to %s", i, fn.Name)
			}
			src, err := m.evalPlace(f, arg.Place)
			if err != nil {
				return err
			}
			lay := m.layoutOf(arg.Type)
			b, err := m.mem.Load(src, lay.Size, lay.Align)
			if err != nil {
				return err
			}
			if err := m.mem.Deinit(src, lay.Size, lay.Align); err != nil {
				return err
			}
			args[i] = b
		default:
			diag.Bugf("machine: unknown argument expression %T", a)
		}
	}
	if err := checkRetAbi(c.RetType, fn); err != nil {
		return err
	}
	return m.pushFrame(th, fn, args, pop)
}

func checkRetAbi(callerRet ir.Type, fn *ir.Function) error {
	calleeRet := fn.RetType()
	switch {
	case callerRet == nil && calleeRet == nil:
		return nil
	case callerRet == nil || calleeRet == nil:
		return diag.UB("return ABI mismatch in call to %s: one side returns nothing", fn.Name)
	case !ir.AbiCompatible(calleeRet, callerRet):
		return diag.UB("return ABI mismatch in call to %s", fn.Name)
	}
	return nil
}

// pushFrame creates the callee frame, allocates and fills the argument
// locals, allocates the return local, and makes the frame active.
func (m *Machine) pushFrame(th *thread.Thread, fn *ir.Function, args [][]mem.Byte, pop thread.PopAction) error {
	nf := thread.NewFrame(fn, pop)
	for i, name := range fn.Args {
		p := m.allocLocal(nf, name)
		lay := m.layoutOf(fn.Locals[name])
		if uint64(len(args[i])) != lay.Size {
			diag.Bugf("machine: argument %d of %s has %d bytes, local wants %d",
				i, fn.Name, len(args[i]), lay.Size)
		}
		if err := m.mem.Store(p, args[i], lay.Align); err != nil {
			return err
		}
	}
	m.allocRetLocal(nf)
	th.Push(nf)
	return nil
}

// popFrame removes the active frame and runs its teardown: locals are
// deallocated, then the frame's protectors are released in reverse
// registration order.
func (m *Machine) popFrame(th *thread.Thread) (*thread.Frame, error) {
	f := th.Pop()
	names := make([]string, 0, len(f.Locals))
	for name := range f.Locals {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		local := ir.LocalName(name)
		lay := m.layoutOf(f.Fn.Locals[local])
		if err := m.mem.Deallocate(f.Locals[local], mem.KindStack, lay.Size, lay.Align); err != nil {
			return nil, err
		}
	}
	for i := len(f.Protected) - 1; i >= 0; i-- {
		if err := m.mem.ReleaseProtector(f.Protected[i]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// execReturn transfers the return value to the caller and resumes it, or
// terminates the thread when the bottom frame returns.
func (m *Machine) execReturn(th *thread.Thread) error {
	f := th.CurFrame()

	var ret []mem.Byte
	if f.Fn.Ret != "" {
		p, live := f.Locals[f.Fn.Ret]
		if !live {
			return diag.UB("returning from %s with a dead return local", f.Fn.Name)
		}
		lay := m.layoutOf(f.Fn.Locals[f.Fn.Ret])
		b, err := m.mem.Load(p, lay.Size, lay.Align)
		if err != nil {
			return err
		}
		ret = b
	}

	if _, err := m.popFrame(th); err != nil {
		return err
	}

	if f.Pop.Bottom {
		if th.ID == 0 {
			return diag.UB("the start function returned instead of exiting")
		}
		m.terminate(th)
		return nil
	}

	caller := th.CurFrame()
	if f.Pop.RetType != nil {
		lay := m.layoutOf(f.Pop.RetType)
		if err := m.mem.Store(f.Pop.Ret, ret, lay.Align); err != nil {
			return err
		}
	}
	if f.Pop.Next == nil {
		return diag.UB("function %s returned to a call with no next block", f.Fn.Name)
	}
	caller.Jump(*f.Pop.Next)
	return nil
}

// execResumeUnwind pops the active frame and continues unwinding in the
// caller's unwind block. Unwinding past the bottom of a stack, or past a
// call without an unwind target, is UB.
func (m *Machine) execResumeUnwind(th *thread.Thread) error {
	f, err := m.popFrame(th)
	if err != nil {
		return err
	}
	if f.Pop.Bottom {
		return diag.UB("unwinding past the bottom of the stack")
	}
	if f.Pop.Unwind == nil {
		return diag.UB("unwinding into a call that has no unwind block")
	}
	th.CurFrame().Jump(*f.Pop.Unwind)
	return nil
}
