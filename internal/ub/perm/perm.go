// Package perm implements the per-byte permission values of the aliasing
// discipline and the fixed transition rule applied on every memory access.
//
// Each byte of each tree node is in exactly one of four permissions:
//
//   - Reserved: a tag that has not written yet; tolerates foreign reads,
//     and a foreign write demotes it to read-only instead of killing it.
//   - Active: a tag that has written; the exclusive writer.
//   - Frozen: read-only; readable forever, never writable.
//   - Disabled: permanently dead; any use through it is UB.
//
// The transition rule is keyed by (current permission, whether the node is
// the accessing node or a foreign one, access kind). It is total:
// Transition reports whether the access is allowed and, if so, the
// successor permission.
package perm

// AccessKind distinguishes read and write accesses.
type AccessKind uint8

const (
	// Read is a load or an implicit validation read.
	Read AccessKind = iota
	// Write is a store, a deallocation, or a de-initialization.
	Write
)

// String returns "read" or "write".
func (k AccessKind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// Relation classifies a tree node with respect to an access: either the
// access happens through this very node, or through a foreign one (any
// other node of the tree, related or not).
type Relation uint8

const (
	// SelfAccess: the access happens through this node.
	SelfAccess Relation = iota
	// ForeignAccess: the access happens through some other tag.
	ForeignAccess
)

// Permission is the per-byte access right of one tag.
type Permission uint8

const (
	// Reserved is the initial permission of a retagged mutable pointer.
	Reserved Permission = iota
	// Active is the permission of a pointer after its first write.
	Active
	// Frozen is the read-only permission.
	Frozen
	// Disabled is the terminal permission; any use through it is UB.
	Disabled
)

// String returns the permission name used in diagnoses.
func (p Permission) String() string {
	switch p {
	case Reserved:
		return "Reserved"
	case Active:
		return "Active"
	case Frozen:
		return "Frozen"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// InitialRead reports whether a reborrow seeding a byte with this
// permission must immediately perform an initializing read through the new
// node. Disabled bytes are never observed, everything else is.
func (p Permission) InitialRead() bool {
	return p != Disabled
}

// LocationState is the per-byte state of one tree node: the current
// permission plus the accessed-since-creation flag. The flag is monotone
// while the node is live; it drives the implicit read performed when a
// protector is released.
type LocationState struct {
	Perm     Permission
	Accessed bool
}

// Transition applies the access rule to a single byte.
//
// It returns the successor permission and whether the access is compatible
// with the aliasing discipline. The caller is responsible for turning an
// incompatible transition into a UB diagnosis (and for the protector rule,
// which needs node-level state this package does not have).
func Transition(p Permission, rel Relation, kind AccessKind) (Permission, bool) {
	if rel == SelfAccess {
		switch kind {
		case Read:
			// Reading through a live tag preserves its permission.
			return p, p != Disabled
		case Write:
			switch p {
			case Reserved, Active:
				return Active, true
			default:
				return p, false
			}
		}
	}
	// Foreign accesses never fail by themselves; writes degrade permissions.
	switch kind {
	case Read:
		return p, true
	case Write:
		if p == Reserved {
			// A not-yet-written tag survives foreign writes read-only.
			return Frozen, true
		}
		return Disabled, true
	}
	return p, false
}

// Inherit limits a reborrow's seed permission by the parent's current
// permission at the same byte: a dead parent poisons the child, a frozen
// parent never hands out write permission.
func Inherit(seed, parent Permission) Permission {
	switch {
	case parent == Disabled:
		return Disabled
	case parent == Frozen && (seed == Reserved || seed == Active):
		return Frozen
	default:
		return seed
	}
}
