// Package tree implements the per-allocation permission tree that enforces
// the pointer aliasing discipline.
//
// Every allocation owns one tree. Each node records the access history of
// one pointer provenance as a per-byte location-state array spanning the
// whole allocation. Nodes live in an arena keyed by stable integer ids and
// are addressed by paths (child-selection indices from the root), so a
// provenance is just (allocation id, path) with no native references into
// the tree.
//
// On every access the tree applies the fixed permission-transition rule of
// package perm to every node, distinguishing the accessing node from all
// foreign ones, and diagnoses UB on the first incompatible transition or
// protector violation.
package tree

import (
	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/perm"
)

// Path addresses a node: the sequence of child-selection indices from the
// root. The empty path is the allocation's original, unrestricted tag.
type Path []int

// Equal reports whether two paths address the same node.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Child returns p extended by one child index.
func (p Path) Child(idx int) Path {
	c := make(Path, len(p)+1)
	copy(c, p)
	c[len(p)] = idx
	return c
}

// Protector marks that a node's permissions must not be invalidated while
// a specific call frame is active.
type Protector uint8

const (
	// NoProtector is the default.
	NoProtector Protector = iota
	// WeakProtector guards accessed bytes but permits deallocation.
	WeakProtector
	// StrongProtector additionally forbids deallocating the allocation.
	StrongProtector
)

// String returns the protector name used in diagnoses.
func (p Protector) String() string {
	switch p {
	case WeakProtector:
		return "weakly"
	case StrongProtector:
		return "strongly"
	default:
		return "not"
	}
}

// node is one arena entry. Nodes are created by reborrows and never
// removed; their location-state arrays always span the whole allocation.
type node struct {
	parent   int
	children []int
	locs     []perm.LocationState
	prot     Protector
}

// Tree is the permission tree of a single allocation.
type Tree struct {
	nodes []node
	size  uint64
}

// New creates a tree for an allocation of the given size. The root node
// holds the exclusive permission over every byte.
func New(size uint64) *Tree {
	locs := make([]perm.LocationState, size)
	for i := range locs {
		locs[i] = perm.LocationState{Perm: perm.Active}
	}
	return &Tree{
		nodes: []node{{parent: -1, locs: locs}},
		size:  size,
	}
}

// Size returns the allocation size the tree covers.
func (t *Tree) Size() uint64 { return t.size }

// NodeCount returns the number of live nodes (nodes are never removed).
func (t *Tree) NodeCount() int { return len(t.nodes) }

// nodeAt resolves a path to an arena id. An unresolvable path can only be
// produced by the engine itself, never by the interpreted program.
func (t *Tree) nodeAt(p Path) int {
	id := 0
	for _, idx := range p {
		children := t.nodes[id].children
		if idx < 0 || idx >= len(children) {
			diag.Bugf("permission tree: path %v does not address a node", p)
		}
		id = children[idx]
	}
	return id
}

// LocationAt returns the location state of one byte of the node at p.
func (t *Tree) LocationAt(p Path, off uint64) perm.LocationState {
	if off >= t.size {
		diag.Bugf("permission tree: offset %d outside allocation of size %d", off, t.size)
	}
	return t.nodes[t.nodeAt(p)].locs[off]
}

// ProtectorAt returns the protector of the node at p.
func (t *Tree) ProtectorAt(p Path) Protector {
	return t.nodes[t.nodeAt(p)].prot
}

// AddChild appends a new last child under the parent path and returns the
// new node's path. The location-state array must span the allocation.
// Failing to resolve the parent is an engine bug, never program UB.
func (t *Tree) AddChild(parent Path, locs []perm.LocationState, prot Protector) Path {
	if uint64(len(locs)) != t.size {
		diag.Bugf("permission tree: node covers %d bytes, allocation has %d", len(locs), t.size)
	}
	pid := t.nodeAt(parent)
	id := len(t.nodes)
	t.nodes = append(t.nodes, node{parent: pid, locs: locs, prot: prot})
	idx := len(t.nodes[pid].children)
	t.nodes[pid].children = append(t.nodes[pid].children, id)
	return parent.Child(idx)
}

// Access applies one read or write access through the node at p to the
// byte range [off, off+length).
//
// Every live node in the tree participates: the accessing node sees a self
// access, all others a foreign one. Touched bytes are marked accessed on
// the accessing node. The first incompatible transition, or the first
// transition that would disable an accessed byte of a protected node, is
// diagnosed as UB; the tree keeps the state reached so far (the run is
// over either way).
func (t *Tree) Access(p Path, kind perm.AccessKind, off, length uint64) error {
	if off+length > t.size {
		diag.Bugf("permission tree: access [%d,%d) outside allocation of size %d", off, off+length, t.size)
	}
	return t.access(t.nodeAt(p), kind, off, length, true)
}

func (t *Tree) access(acc int, kind perm.AccessKind, off, length uint64, protCheck bool) error {
	for id := range t.nodes {
		n := &t.nodes[id]
		rel := perm.ForeignAccess
		if id == acc {
			rel = perm.SelfAccess
		}
		for i := off; i < off+length; i++ {
			ls := &n.locs[i]
			next, ok := perm.Transition(ls.Perm, rel, kind)
			if !ok {
				return diag.UB("%s access through a %s tag", kind, ls.Perm)
			}
			if protCheck && next == perm.Disabled && ls.Perm != perm.Disabled &&
				n.prot != NoProtector && ls.Accessed {
				return diag.UB("%s access invalidates a %s protected tag", kind, n.prot)
			}
			ls.Perm = next
			if rel == perm.SelfAccess {
				ls.Accessed = true
			}
		}
	}
	return nil
}

// Dealloc applies the full-allocation write access performed by a
// deallocation through the node at p. Weak protectors do not guard against
// deallocation, so the protector rule is not applied here; strong
// protectors forbid the deallocation outright and are checked by the
// allocation table before this runs.
func (t *Tree) Dealloc(p Path) error {
	return t.access(t.nodeAt(p), perm.Write, 0, t.size, false)
}

// ContainsStrongProtector reports whether any node anywhere in the tree
// currently holds a strong protector, irrespective of byte ranges.
func (t *Tree) ContainsStrongProtector() bool {
	for id := range t.nodes {
		if t.nodes[id].prot == StrongProtector {
			return true
		}
	}
	return false
}

// ContainsAccessedStrongProtector reports whether any strongly protected
// node has at least one accessed byte. Used by the relaxed deallocation
// policy, which ignores strong protectors with an empty protected range.
func (t *Tree) ContainsAccessedStrongProtector() bool {
	for id := range t.nodes {
		if t.nodes[id].prot != StrongProtector {
			continue
		}
		for _, ls := range t.nodes[id].locs {
			if ls.Accessed {
				return true
			}
		}
	}
	return false
}

// ReleaseProtector ends the protected lifetime of the node at p.
//
// It performs one implicit read access at the node restricted to the bytes
// flagged accessed during the call, validating that the protection
// contract was honored, then clears the protector. Releasing a node that
// holds no protector is an engine bug, not program UB.
func (t *Tree) ReleaseProtector(p Path) error {
	id := t.nodeAt(p)
	if t.nodes[id].prot == NoProtector {
		diag.Bugf("permission tree: releasing a protector that does not exist (path %v)", p)
	}
	for i := uint64(0); i < t.size; i++ {
		if !t.nodes[id].locs[i].Accessed {
			continue
		}
		if err := t.access(id, perm.Read, i, 1, true); err != nil {
			return err
		}
	}
	t.nodes[id].prot = NoProtector
	return nil
}

// Reborrow derives a child provenance from the node at base.
//
// The child's location-state array spans the entire allocation seeded with
// the outside permission; the pointee sub-range [off, off+len(inside)) is
// overwritten with the per-byte inside permissions. Each seed is limited
// by the parent's current permission at the same byte, so a dead parent
// byte yields a dead child byte. For every inside byte whose permission
// requires an initializing observation the reborrow immediately performs a
// read access through the new node over just that byte, recording it as
// accessed and validating the reborrow before first use.
func (t *Tree) Reborrow(base Path, outside perm.Permission, inside []perm.LocationState, off uint64, prot Protector) (Path, error) {
	end := off + uint64(len(inside))
	if end > t.size {
		diag.Bugf("permission tree: reborrow [%d,%d) outside allocation of size %d", off, end, t.size)
	}
	parent := t.nodes[t.nodeAt(base)].locs
	locs := make([]perm.LocationState, t.size)
	for i := range locs {
		seed := outside
		if uint64(i) >= off && uint64(i) < end {
			seed = inside[uint64(i)-off].Perm
		}
		locs[i] = perm.LocationState{Perm: perm.Inherit(seed, parent[i].Perm)}
	}
	child := t.AddChild(base, locs, prot)
	for i := uint64(0); i < uint64(len(inside)); i++ {
		if !t.nodes[t.nodeAt(child)].locs[off+i].Perm.InitialRead() {
			continue
		}
		if err := t.Access(child, perm.Read, off+i, 1); err != nil {
			return nil, err
		}
	}
	return child, nil
}
