package ir

// CallingConvention tags a function and its call sites. The two must match
// exactly; a mismatch is UB before the callee runs.
type CallingConvention uint8

const (
	// ConvRust is the default convention of the source language.
	ConvRust CallingConvention = iota
	// ConvC is the foreign convention.
	ConvC
)

// String returns the convention name.
func (c CallingConvention) String() string {
	if c == ConvC {
		return "C"
	}
	return "Rust"
}

// AbiCompatible reports whether a value of type a may be passed where type
// b is expected (argument passing or return-value passing).
//
// Compatibility is structural:
//   - integers must match in both signedness and size,
//   - booleans match booleans,
//   - pointers compare only their metadata kind, never the pointee,
//   - tuples require field-wise compatibility at identical offsets plus an
//     identical overall layout,
//   - arrays require compatible elements and identical counts,
//   - any kind mismatch is incompatible.
func AbiCompatible(a, b Type) bool {
	switch at := a.(type) {
	case IntType:
		bt, ok := b.(IntType)
		return ok && at.Signed == bt.Signed && at.Size == bt.Size
	case BoolType:
		_, ok := b.(BoolType)
		return ok
	case PtrType:
		bt, ok := b.(PtrType)
		return ok && at.Meta == bt.Meta
	case TupleType:
		bt, ok := b.(TupleType)
		if !ok || len(at.Fields) != len(bt.Fields) {
			return false
		}
		if at.TSize != bt.TSize || at.TAlign != bt.TAlign {
			return false
		}
		for i, f := range at.Fields {
			g := bt.Fields[i]
			if f.Offset != g.Offset || !AbiCompatible(f.Type, g.Type) {
				return false
			}
		}
		return true
	case ArrayType:
		bt, ok := b.(ArrayType)
		return ok && at.Count == bt.Count && AbiCompatible(at.Elem, bt.Elem)
	default:
		return false
	}
}
