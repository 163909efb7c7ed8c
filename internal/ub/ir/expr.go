package ir

// LocalName identifies a local slot within one function.
type LocalName string

// FnName identifies a function within the program.
type FnName string

// BbName identifies a basic block within one function.
type BbName string

// ValueExpr produces a value.
type ValueExpr interface{ isValueExpr() }

// ConstInt is an integer literal of an explicit integer type.
type ConstInt struct {
	Value int64
	Type  IntType
}

func (ConstInt) isValueExpr() {}

// ConstBool is a boolean literal.
type ConstBool struct {
	Value bool
}

func (ConstBool) isValueExpr() {}

// Load reads the current value of a place at the given type.
type Load struct {
	Place PlaceExpr
	Type  Type
}

func (Load) isValueExpr() {}

// AddrOf takes the address of a place as a pointer of the given type.
type AddrOf struct {
	Place PlaceExpr
	Type  PtrType
}

func (AddrOf) isValueExpr() {}

// FnPtr is a pointer to a declared function.
type FnPtr struct {
	Fn FnName
}

func (FnPtr) isValueExpr() {}

// PlaceExpr designates a memory location.
type PlaceExpr interface{ isPlaceExpr() }

// Local designates a function-local slot. The local must be live.
type Local struct {
	Name LocalName
}

func (Local) isPlaceExpr() {}

// Deref designates the pointee of a pointer value, viewed at Type.
type Deref struct {
	Value ValueExpr
	Type  Type
}

func (Deref) isPlaceExpr() {}

// ArgumentExpr is one call argument: passed by value, or in place (the
// source place is loaded and then de-initialized).
type ArgumentExpr interface{ isArgumentExpr() }

// ByValue passes a copy of the evaluated value.
type ByValue struct {
	Value ValueExpr
	Type  Type
}

func (ByValue) isArgumentExpr() {}

// InPlace moves the current contents of a place into the callee.
type InPlace struct {
	Place PlaceExpr
	Type  Type
}

func (InPlace) isArgumentExpr() {}
