package ir

// Statement is one non-terminator instruction of a basic block.
type Statement interface{ isStatement() }

// Assign stores the evaluated source value into the destination place.
type Assign struct {
	Dest PlaceExpr
	Src  ValueExpr
	Type Type
}

func (Assign) isStatement() {}

// StorageLive allocates backing storage for a local. Executing it on an
// already-live local is UB.
type StorageLive struct {
	Local LocalName
}

func (StorageLive) isStatement() {}

// StorageDead frees a local's backing storage. Executing it on a dead
// local is UB.
type StorageDead struct {
	Local LocalName
}

func (StorageDead) isStatement() {}

// Validate retags the pointer stored in the given place according to its
// static type. FnEntry marks function-entry validation, which additionally
// protects the new tag for the lifetime of the current frame.
type Validate struct {
	Place   PlaceExpr
	Type    PtrType
	FnEntry bool
}

func (Validate) isStatement() {}

// Terminator ends a basic block.
type Terminator interface{ isTerminator() }

// Goto jumps unconditionally.
type Goto struct {
	Target BbName
}

func (Goto) isTerminator() {}

// SwitchCase pairs one integer value with its target block.
type SwitchCase struct {
	Value  int64
	Target BbName
}

// Switch evaluates an integer and jumps to the matching case, or to
// Fallback if no case matches.
type Switch struct {
	Value    ValueExpr
	Cases    []SwitchCase
	Fallback BbName
}

func (Switch) isTerminator() {}

// Unreachable is immediate UB when executed.
type Unreachable struct{}

func (Unreachable) isTerminator() {}

// Call invokes a function. Next is where control resumes after the callee
// returns (nil for calls that never return); Unwind is where control
// resumes if the callee unwinds (nil if it must not).
type Call struct {
	Callee  ValueExpr
	Conv    CallingConvention
	Args    []ArgumentExpr
	Ret     PlaceExpr
	RetType Type
	Next    *BbName
	Unwind  *BbName
}

func (Call) isTerminator() {}

// Return pops the current frame and transfers the return value to the
// caller's return place.
type Return struct{}

func (Return) isTerminator() {}

// StartUnwind begins unwinding: it pushes the payload onto the thread's
// unwind-payload stack and enters the cleanup block.
type StartUnwind struct {
	Payload ValueExpr
	Target  BbName
}

func (StartUnwind) isTerminator() {}

// StopUnwind ends unwinding in a catch block: it pops one payload and
// resumes regular control flow.
type StopUnwind struct {
	Target BbName
}

func (StopUnwind) isTerminator() {}

// ResumeUnwind continues unwinding into the caller's unwind block.
type ResumeUnwind struct{}

func (ResumeUnwind) isTerminator() {}

// IntrinsicOp enumerates the intrinsic operations: allocation,
// deallocation, threading, locking, atomics, printing and unwind-payload
// access.
type IntrinsicOp uint8

const (
	IntrinsicAllocate IntrinsicOp = iota
	IntrinsicDeallocate
	IntrinsicExit
	IntrinsicAbort
	IntrinsicSpawn
	IntrinsicJoin
	IntrinsicPrintStdout
	IntrinsicPrintStderr
	IntrinsicGetUnwindPayload
	IntrinsicAssume
	IntrinsicRawEq
	IntrinsicAtomicLoad
	IntrinsicAtomicStore
	IntrinsicLockCreate
	IntrinsicLockAcquire
	IntrinsicLockRelease
)

// String returns the intrinsic name as spelled in program descriptions.
func (op IntrinsicOp) String() string {
	switch op {
	case IntrinsicAllocate:
		return "allocate"
	case IntrinsicDeallocate:
		return "deallocate"
	case IntrinsicExit:
		return "exit"
	case IntrinsicAbort:
		return "abort"
	case IntrinsicSpawn:
		return "spawn"
	case IntrinsicJoin:
		return "join"
	case IntrinsicPrintStdout:
		return "print"
	case IntrinsicPrintStderr:
		return "eprint"
	case IntrinsicGetUnwindPayload:
		return "get_unwind_payload"
	case IntrinsicAssume:
		return "assume"
	case IntrinsicRawEq:
		return "raw_eq"
	case IntrinsicAtomicLoad:
		return "atomic_load"
	case IntrinsicAtomicStore:
		return "atomic_store"
	case IntrinsicLockCreate:
		return "lock_create"
	case IntrinsicLockAcquire:
		return "lock_acquire"
	case IntrinsicLockRelease:
		return "lock_release"
	default:
		return "unknown"
	}
}

// Intrinsic evaluates its arguments, dispatches the operation, stores the
// result, and jumps to Next.
type Intrinsic struct {
	Op      IntrinsicOp
	Args    []ValueExpr
	Ret     PlaceExpr
	RetType Type
	Next    *BbName
}

func (Intrinsic) isTerminator() {}

// BbKind constrains which terminators a block may contain. The loader
// enforces the constraints statically; the engine assumes them.
type BbKind uint8

const (
	// BbRegular is ordinary control flow.
	BbRegular BbKind = iota
	// BbCleanup runs during unwinding.
	BbCleanup
	// BbCatch intercepts unwinding (StopUnwind lives here).
	BbCatch
	// BbTerminate aborts the program during unwinding.
	BbTerminate
)

// String returns the block kind name used in program descriptions.
func (k BbKind) String() string {
	switch k {
	case BbRegular:
		return "regular"
	case BbCleanup:
		return "cleanup"
	case BbCatch:
		return "catch"
	case BbTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// BasicBlock is a straight-line statement list ended by one terminator.
type BasicBlock struct {
	Statements []Statement
	Term       Terminator
	Kind       BbKind
}

// Function is one CFG. Args names the parameter locals in order; Ret names
// the return local ("" for functions that return nothing).
type Function struct {
	Name   FnName
	Conv   CallingConvention
	Args   []LocalName
	Ret    LocalName
	Locals map[LocalName]Type
	Blocks map[BbName]*BasicBlock
	Start  BbName
}

// RetType returns the declared return type, or nil when the function has
// no return local.
func (f *Function) RetType() Type {
	if f.Ret == "" {
		return nil
	}
	return f.Locals[f.Ret]
}

// Program is a set of functions with a designated start function.
type Program struct {
	Functions map[FnName]*Function
	Start     FnName
}
