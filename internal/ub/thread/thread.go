// Package thread holds the per-thread execution state: the call stack of
// frames, the scheduling state, and the unwind payload stack.
package thread

import (
	"github.com/kolkov/ubcheck/internal/ub/diag"
	"github.com/kolkov/ubcheck/internal/ub/ir"
	"github.com/kolkov/ubcheck/internal/ub/mem"
)

// PopAction records, at push time, what happens when a frame is popped
// again. The bottom frame of a thread has nowhere to return to; every
// other frame remembers the caller's return place and continuation blocks.
type PopAction struct {
	Bottom  bool
	Ret     mem.Pointer
	RetType ir.Type
	Next    *ir.BbName
	Unwind  *ir.BbName
}

// Frame is one entry of a thread's call stack.
type Frame struct {
	Fn     *ir.Function
	Locals map[ir.LocalName]mem.Pointer
	Block  ir.BbName
	Stmt   int
	Pop    PopAction

	// Protected collects the provenances whose protectors this frame
	// owns; they are released in reverse order when the frame ends.
	Protected []mem.Provenance
}

// NewFrame starts a frame at the function's start block.
func NewFrame(fn *ir.Function, pop PopAction) *Frame {
	return &Frame{
		Fn:     fn,
		Locals: make(map[ir.LocalName]mem.Pointer),
		Block:  fn.Start,
		Pop:    pop,
	}
}

// RecordProtected registers a protector owned by this frame.
func (f *Frame) RecordProtected(p mem.Provenance) {
	f.Protected = append(f.Protected, p)
}

// CurBlock resolves the frame's current basic block.
func (f *Frame) CurBlock() *ir.BasicBlock {
	bb, ok := f.Fn.Blocks[f.Block]
	if !ok {
		diag.Bugf("thread: function %s has no block %s", f.Fn.Name, f.Block)
	}
	return bb
}

// Jump moves the frame to the start of another block.
func (f *Frame) Jump(bb ir.BbName) {
	f.Block = bb
	f.Stmt = 0
}

// State is the scheduling state of a thread.
type State uint8

const (
	// Enabled threads take regular turns.
	Enabled State = iota
	// BlockedOnJoin waits for another thread to terminate.
	BlockedOnJoin
	// BlockedOnLock waits for a lock to be handed over.
	BlockedOnLock
	// Terminated threads never run again.
	Terminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case BlockedOnJoin:
		return "blocked on join"
	case BlockedOnLock:
		return "blocked on lock"
	default:
		return "terminated"
	}
}

// ID identifies a thread; the main thread is always 0.
type ID int

// Thread is one cooperative thread of the interpreted program.
type Thread struct {
	ID    ID
	Stack []*Frame
	State State

	// JoinTarget is the thread waited on while State is BlockedOnJoin.
	JoinTarget ID

	// LockTarget is the lock waited on while State is BlockedOnLock.
	LockTarget int

	// UnwindPayloads is the stack of payload pointers of unwinds in
	// flight on this thread, innermost last.
	UnwindPayloads []mem.Pointer
}

// New creates an enabled thread whose stack holds the single given frame.
func New(id ID, bottom *Frame) *Thread {
	return &Thread{ID: id, Stack: []*Frame{bottom}}
}

// CurFrame returns the top of the call stack.
func (t *Thread) CurFrame() *Frame {
	if len(t.Stack) == 0 {
		diag.Bugf("thread %d: no active frame", t.ID)
	}
	return t.Stack[len(t.Stack)-1]
}

// Push makes f the active frame.
func (t *Thread) Push(f *Frame) {
	t.Stack = append(t.Stack, f)
}

// Pop removes and returns the active frame.
func (t *Thread) Pop() *Frame {
	f := t.CurFrame()
	t.Stack = t.Stack[:len(t.Stack)-1]
	return f
}

// PushPayload records the payload of an unwind that just started.
func (t *Thread) PushPayload(p mem.Pointer) {
	t.UnwindPayloads = append(t.UnwindPayloads, p)
}

// PeekPayload returns the innermost in-flight payload.
func (t *Thread) PeekPayload() (mem.Pointer, bool) {
	if len(t.UnwindPayloads) == 0 {
		return mem.Pointer{}, false
	}
	return t.UnwindPayloads[len(t.UnwindPayloads)-1], true
}

// PopPayload removes the innermost in-flight payload.
func (t *Thread) PopPayload() (mem.Pointer, bool) {
	p, ok := t.PeekPayload()
	if ok {
		t.UnwindPayloads = t.UnwindPayloads[:len(t.UnwindPayloads)-1]
	}
	return p, ok
}
