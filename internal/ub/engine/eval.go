package engine

import (
	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/mem"
	"github.com/kolkov/ubcheck/internal/ub/thread"
)

// staticType returns the type a value expression evaluates at. Every
// variant carries it, directly or via its literal.
func staticType(e ir.ValueExpr) ir.Type {
	switch v := e.(type) {
	case ir.ConstInt:
		return v.Type
	case ir.ConstBool:
		return ir.BoolType{}
	case ir.Load:
		return v.Type
	case ir.AddrOf:
		return v.Type
	case ir.FnPtr:
		return ir.PtrType{Kind: ir.Raw}
	default:
		diag.Bugf("machine: unknown value expression %T", e)
		return nil
	}
}

// evalValue evaluates a value expression to its representation bytes.
func (m *Machine) evalValue(f *thread.Frame, e ir.ValueExpr) ([]mem.Byte, error) {
	switch v := e.(type) {
	case ir.ConstInt:
		return mem.EncodeUint(uint64(v.Value), v.Type.Size), nil
	case ir.ConstBool:
		return mem.EncodeBool(v.Value), nil
	case ir.Load:
		p, err := m.evalPlace(f, v.Place)
		if err != nil {
			return nil, err
		}
		lay := m.layoutOf(v.Type)
		return m.mem.Load(p, lay.Size, lay.Align)
	case ir.AddrOf:
		p, err := m.evalPlace(f, v.Place)
		if err != nil {
			return nil, err
		}
		return mem.EncodePointer(p), nil
	case ir.FnPtr:
		addr, ok := m.fnAddr[v.Fn]
		if !ok {
			diag.Bugf("machine: function pointer to unknown function %s", v.Fn)
		}
		return mem.EncodePointer(mem.Pointer{Addr: addr}), nil
	default:
		diag.Bugf("machine: unknown value expression %T", e)
		return nil, nil
	}
}

// evalPlace evaluates a place expression to the pointer it designates.
func (m *Machine) evalPlace(f *thread.Frame, e ir.PlaceExpr) (mem.Pointer, error) {
	switch p := e.(type) {
	case ir.Local:
		ptr, ok := f.Locals[p.Name]
		if !ok {
			return mem.Pointer{}, diag.UB("access to local %s which is not live", p.Name)
		}
		return ptr, nil
	case ir.Deref:
		b, err := m.evalValue(f, p.Value)
		if err != nil {
			return mem.Pointer{}, err
		}
		ptr, ok := mem.DecodePointer(b)
		if !ok {
			return mem.Pointer{}, diag.UB("dereferencing an invalid pointer value")
		}
		return ptr, nil
	default:
		diag.Bugf("machine: unknown place expression %T", e)
		return mem.Pointer{}, nil
	}
}

// evalInt evaluates an expression whose static type is an integer and
// decodes it according to its signedness.
func (m *Machine) evalInt(f *thread.Frame, e ir.ValueExpr) (int64, error) {
	it, ok := staticType(e).(ir.IntType)
	if !ok {
		return 0, diag.UB("expected an integer operand")
	}
	b, err := m.evalValue(f, e)
	if err != nil {
		return 0, err
	}
	if it.Signed {
		v, ok := mem.DecodeInt(b)
		if !ok {
			return 0, diag.UB("reading an uninitialized integer")
		}
		return v, nil
	}
	v, ok := mem.DecodeUint(b)
	if !ok {
		return 0, diag.UB("reading an uninitialized integer")
	}
	return int64(v), nil
}

// evalPointer evaluates an expression to a pointer value.
func (m *Machine) evalPointer(f *thread.Frame, e ir.ValueExpr) (mem.Pointer, error) {
	b, err := m.evalValue(f, e)
	if err != nil {
		return mem.Pointer{}, err
	}
	p, ok := mem.DecodePointer(b)
	if !ok {
		return mem.Pointer{}, diag.UB("expected a pointer, found an invalid value")
	}
	return p, nil
}
