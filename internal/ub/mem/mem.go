// Package mem implements the allocation table and the abstract byte store.
//
// Memory owns every allocation made by the interpreted program. Each
// allocation carries its permission tree; every load, store, retag and
// deallocation is routed through the tree so the aliasing discipline is
// enforced on exactly the touched byte range. Allocation records are never
// physically removed: a deallocated allocation stays in the table with its
// liveness flag cleared so later misuse can be diagnosed precisely.
package mem

import (
	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/perm"
	"github.com/kolkov/ubcheck/internal/ub/tree"
)

// AllocID identifies one allocation for the whole run.
type AllocID int

// Provenance identifies a pointer's current access rights: the allocation
// it may touch and the path of its tag in that allocation's tree.
type Provenance struct {
	Alloc AllocID
	Path  tree.Path
}

// Equal reports whether two provenances denote the same tag.
func (p Provenance) Equal(q Provenance) bool {
	return p.Alloc == q.Alloc && p.Path.Equal(q.Path)
}

// Pointer is a runtime pointer value: an address plus optional provenance.
// A pointer without provenance can be compared and copied but dereferencing
// it is UB.
type Pointer struct {
	Addr uint64
	Prov *Provenance
}

// Byte is one abstract memory byte. It may be uninitialized, and an
// initialized byte may carry the provenance of the pointer value it was
// copied out of (pointer bytes are symbolic, not just numbers).
type Byte struct {
	Init bool
	Val  uint8
	Prov *Provenance
}

// AllocKind tags what created an allocation; deallocation must match.
type AllocKind uint8

const (
	// KindHeap is created by the allocate intrinsic.
	KindHeap AllocKind = iota
	// KindStack backs function locals.
	KindStack
	// KindGlobal backs program globals.
	KindGlobal
)

// String returns the allocation kind name used in diagnoses.
func (k AllocKind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindStack:
		return "stack"
	default:
		return "global"
	}
}

// Allocation is one entry of the allocation table.
type Allocation struct {
	ID    AllocID
	Addr  uint64
	Size  uint64
	Align uint64
	Kind  AllocKind
	Live  bool
	Tree  *tree.Tree

	bytes []Byte
}

// ProtectedDeallocPolicy selects how strong protectors interact with
// deallocation. The default forbids deallocating an allocation whose tree
// holds any strong protector, even one whose protected byte range is
// empty; the relaxed policy only forbids it when the protected node has
// accessed at least one byte.
type ProtectedDeallocPolicy uint8

const (
	// ProtectedDeallocForbid: any live strong protector forbids the free.
	ProtectedDeallocForbid ProtectedDeallocPolicy = iota
	// ProtectedDeallocAllowEmptyRange: strong protectors with no accessed
	// bytes do not forbid the free.
	ProtectedDeallocAllowEmptyRange
)

// Config carries the memory policies.
type Config struct {
	ProtectedDealloc ProtectedDeallocPolicy
}

// Memory is the process-wide allocation table, shared by all threads.
type Memory struct {
	cfg      Config
	allocs   []*Allocation
	nextAddr uint64
}

// Allocations start above the null page; a small guard gap keeps distinct
// allocations at distinct addresses even when zero-sized.
const (
	baseAddr = 0x10000
	guardGap = 16
)

// New creates an empty allocation table.
func New(cfg Config) *Memory {
	return &Memory{cfg: cfg, nextAddr: baseAddr}
}

// Allocation returns the table entry for an id. Ids are engine-produced;
// an unknown id is an engine bug.
func (m *Memory) Allocation(id AllocID) *Allocation {
	if int(id) < 0 || int(id) >= len(m.allocs) {
		diag.Bugf("allocation table: unknown allocation id %d", id)
	}
	return m.allocs[id]
}

// Allocate creates a live allocation of the given kind and returns a
// pointer carrying its original, unrestricted tag.
func (m *Memory) Allocate(kind AllocKind, size, align uint64) (Pointer, error) {
	if align == 0 || align&(align-1) != 0 {
		return Pointer{}, diag.UB("invalid allocation alignment %d", align)
	}
	addr := (m.nextAddr + align - 1) &^ (align - 1)
	m.nextAddr = addr + size + guardGap
	a := &Allocation{
		ID:    AllocID(len(m.allocs)),
		Addr:  addr,
		Size:  size,
		Align: align,
		Kind:  kind,
		Live:  true,
		Tree:  tree.New(size),
		bytes: make([]Byte, size),
	}
	m.allocs = append(m.allocs, a)
	return Pointer{Addr: addr, Prov: &Provenance{Alloc: a.ID}}, nil
}

// CheckPtr validates that p may be dereferenced for size bytes at the
// given alignment: it must carry provenance into a live allocation, the
// range must be in bounds, and the address must be aligned.
func (m *Memory) CheckPtr(p Pointer, size, align uint64) (*Allocation, error) {
	if p.Prov == nil {
		return nil, diag.UB("dereferencing a pointer without provenance")
	}
	a := m.Allocation(p.Prov.Alloc)
	if !a.Live {
		return nil, diag.UB("dereferencing a dangling pointer (allocation %d was deallocated)", a.ID)
	}
	if p.Addr < a.Addr || p.Addr+size > a.Addr+a.Size {
		return nil, diag.UB("pointer out of bounds of allocation %d", a.ID)
	}
	if align > 0 && p.Addr%align != 0 {
		return nil, diag.UB("pointer insufficiently aligned (need %d)", align)
	}
	return a, nil
}

// Load reads size bytes through p after a read access through p's tag.
func (m *Memory) Load(p Pointer, size, align uint64) ([]Byte, error) {
	a, err := m.CheckPtr(p, size, align)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	off := p.Addr - a.Addr
	if err := a.Tree.Access(p.Prov.Path, perm.Read, off, size); err != nil {
		return nil, err
	}
	out := make([]Byte, size)
	copy(out, a.bytes[off:off+size])
	return out, nil
}

// Store writes the given bytes through p after a write access through p's
// tag.
func (m *Memory) Store(p Pointer, b []Byte, align uint64) error {
	size := uint64(len(b))
	a, err := m.CheckPtr(p, size, align)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	off := p.Addr - a.Addr
	if err := a.Tree.Access(p.Prov.Path, perm.Write, off, size); err != nil {
		return err
	}
	copy(a.bytes[off:off+size], b)
	return nil
}

// Deinit performs a write access through p and marks the range
// uninitialized. Used for return places and in-place argument sources.
func (m *Memory) Deinit(p Pointer, size, align uint64) error {
	a, err := m.CheckPtr(p, size, align)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	off := p.Addr - a.Addr
	if err := a.Tree.Access(p.Prov.Path, perm.Write, off, size); err != nil {
		return err
	}
	for i := off; i < off+size; i++ {
		a.bytes[i] = Byte{}
	}
	return nil
}

// Deallocate frees the allocation p points at. The pointer must address
// the allocation start, the stated kind, size and alignment must match the
// allocation, no strong protector may forbid the free (per policy), and
// the free itself counts as a full-allocation write access through p's tag.
func (m *Memory) Deallocate(p Pointer, kind AllocKind, size, align uint64) error {
	a, err := m.CheckPtr(p, size, align)
	if err != nil {
		return err
	}
	if p.Addr != a.Addr {
		return diag.UB("deallocating with a pointer into the middle of allocation %d", a.ID)
	}
	if kind != a.Kind || size != a.Size || align != a.Align {
		return diag.UB("incorrect layout for deallocation: allocation %d is %s/%d/%d, got %s/%d/%d",
			a.ID, a.Kind, a.Size, a.Align, kind, size, align)
	}
	blocked := a.Tree.ContainsStrongProtector()
	if m.cfg.ProtectedDealloc == ProtectedDeallocAllowEmptyRange {
		blocked = a.Tree.ContainsAccessedStrongProtector()
	}
	if blocked {
		return diag.UB("deallocating allocation %d while strongly protected", a.ID)
	}
	if err := a.Tree.Dealloc(p.Prov.Path); err != nil {
		return err
	}
	a.Live = false
	return nil
}

// ReleaseProtector drains one protected provenance when its frame ends.
//
// If the allocation died in the meantime (a box freeing itself, or an
// empty-range strong protector under the relaxed policy) there is nothing
// left to validate and the release is a no-op. Under the default policy a
// strong protector cannot outlive its allocation: Deallocate refuses the
// free while one is held, so finding one on a dead allocation means the
// engine let a forbidden free through.
func (m *Memory) ReleaseProtector(prov Provenance) error {
	a := m.Allocation(prov.Alloc)
	if !a.Live {
		if m.cfg.ProtectedDealloc == ProtectedDeallocForbid &&
			a.Tree.ProtectorAt(prov.Path) == tree.StrongProtector {
			diag.Bugf("allocation table: allocation %d died under a strong protector", a.ID)
		}
		return nil
	}
	return a.Tree.ReleaseProtector(prov.Path)
}

// LeakCheck reports heap allocations still live at program exit.
func (m *Memory) LeakCheck() error {
	for _, a := range m.allocs {
		if a.Live && a.Kind == KindHeap {
			return diag.UB("memory leaked: allocation %d (%d bytes) was never deallocated", a.ID, a.Size)
		}
	}
	return nil
}
