// Package ir defines the program representation the interpreter executes:
// types with their layout, value and place expressions, statements,
// terminators, basic blocks, functions, and whole programs.
//
// The representation is a set of tagged unions modeled as small sealed
// interfaces; the engine dispatches over them with exhaustive type
// switches. Extending the IR means growing a union, never subclassing.
package ir

// Layout is the (size, alignment) pair of a sized type, in bytes.
type Layout struct {
	Size  uint64
	Align uint64
}

// Type is the static type of values, locals, and pointees.
//
// Layout returns the type's layout, or false for dynamically sized types
// (which only ever occur behind pointers).
type Type interface {
	Layout() (Layout, bool)
	isType()
}

// IntType is a fixed-width integer. Size is in bytes (1, 2, 4, or 8).
type IntType struct {
	Signed bool
	Size   uint64
}

func (t IntType) Layout() (Layout, bool) { return Layout{Size: t.Size, Align: t.Size}, true }
func (t IntType) isType()                {}

// BoolType is a one-byte boolean.
type BoolType struct{}

func (t BoolType) Layout() (Layout, bool) { return Layout{Size: 1, Align: 1}, true }
func (t BoolType) isType()                {}

// PtrKind distinguishes the pointer flavors of the source language.
type PtrKind uint8

const (
	// Ref is a reference: retagged at validation points.
	Ref PtrKind = iota
	// Box is an owning pointer: retagged, weakly protected at call entry.
	Box
	// Raw is a raw pointer: never retagged, passes through unchanged.
	Raw
)

// String returns the pointer kind name.
func (k PtrKind) String() string {
	switch k {
	case Ref:
		return "ref"
	case Box:
		return "box"
	default:
		return "raw"
	}
}

// MetaKind is the pointer metadata kind. ABI compatibility of pointers
// compares only this, never the pointee.
type MetaKind uint8

const (
	// MetaNone marks a thin pointer.
	MetaNone MetaKind = iota
	// MetaLen marks a wide pointer carrying an element count.
	MetaLen
	// MetaVTable marks a wide pointer carrying a vtable reference.
	MetaVTable
)

// PtrSize is the byte size of a thin pointer on the interpreted target.
const PtrSize = 8

// PtrType is a typed pointer. Pointee is nil for raw pointers (their
// pointee is irrelevant to every in-scope operation).
type PtrType struct {
	Kind    PtrKind
	Mutable bool
	Meta    MetaKind
	Pointee *PointeeInfo
}

func (t PtrType) Layout() (Layout, bool) {
	if t.Meta != MetaNone {
		return Layout{Size: 2 * PtrSize, Align: PtrSize}, true
	}
	return Layout{Size: PtrSize, Align: PtrSize}, true
}
func (t PtrType) isType() {}

// PointeeInfo describes what a non-raw pointer points to. For sized
// pointees Layout is authoritative; Unsized pointees defer their layout to
// the pointer metadata.
type PointeeInfo struct {
	Layout  Layout
	Unsized bool
}

// TupleField is one sized field of a tuple at a fixed offset.
type TupleField struct {
	Offset uint64
	Type   Type
}

// TupleType is an aggregate with explicit field offsets and an explicit
// overall layout (the layout computation itself is a collaborator's job;
// the IR just records its result).
type TupleType struct {
	Fields []TupleField
	TSize  uint64
	TAlign uint64
}

func (t TupleType) Layout() (Layout, bool) { return Layout{Size: t.TSize, Align: t.TAlign}, true }
func (t TupleType) isType()                {}

// ArrayType is a homogeneous fixed-count aggregate.
type ArrayType struct {
	Elem  Type
	Count uint64
}

func (t ArrayType) Layout() (Layout, bool) {
	el, ok := t.Elem.Layout()
	if !ok {
		return Layout{}, false
	}
	return Layout{Size: el.Size * t.Count, Align: el.Align}, true
}
func (t ArrayType) isType() {}

// Unit is the zero-sized tuple, used for return places of functions that
// return nothing interesting.
func Unit() TupleType { return TupleType{TSize: 0, TAlign: 1} }
