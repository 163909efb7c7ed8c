package mem

import (
	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/perm"
	"github.com/kolkov/ubcheck/internal/ub/tree"
)

// ProtectorRecorder receives the provenances whose protectors are owned
// by the current call frame, so they can be released when the frame ends.
type ProtectorRecorder interface {
	RecordProtected(Provenance)
}

// Retag reborrows p according to its pointer type and returns the pointer
// rewritten with the fresh provenance.
//
// References and boxes are validated (dereferenceable for the pointee
// layout) and get a new tag: Reserved for exclusive pointers, Frozen for
// shared references. At function entry the new tag is protected for the
// duration of the frame, strongly for references and weakly for boxes.
// A zero-sized pointee still gets a fresh (possibly protected) tag, it
// just guards no bytes. Raw pointers, provenance-free pointers and
// unsized pointees pass through unchanged.
func (m *Memory) Retag(p Pointer, t ir.PtrType, fnEntry bool, rec ProtectorRecorder) (Pointer, error) {
	if t.Kind == ir.Raw || p.Prov == nil {
		return p, nil
	}
	if t.Pointee == nil {
		diag.Bugf("retag: %v pointer without pointee layout", t.Kind)
	}
	if t.Pointee.Unsized {
		return p, nil
	}
	size := t.Pointee.Layout.Size
	a, err := m.CheckPtr(p, size, t.Pointee.Layout.Align)
	if err != nil {
		return Pointer{}, err
	}

	seed := perm.Reserved
	if t.Kind == ir.Ref && !t.Mutable {
		seed = perm.Frozen
	}
	prot := tree.NoProtector
	if fnEntry {
		if t.Kind == ir.Box {
			prot = tree.WeakProtector
		} else {
			prot = tree.StrongProtector
		}
	}
	inside := make([]perm.LocationState, size)
	for i := range inside {
		inside[i] = perm.LocationState{Perm: seed}
	}

	path, err := a.Tree.Reborrow(p.Prov.Path, seed, inside, p.Addr-a.Addr, prot)
	if err != nil {
		return Pointer{}, err
	}
	prov := &Provenance{Alloc: a.ID, Path: path}
	if prot != tree.NoProtector {
		if rec == nil {
			diag.Bugf("retag: protector requested with no owning frame")
		}
		rec.RecordProtected(*prov)
	}
	return Pointer{Addr: p.Addr, Prov: prov}, nil
}
