// Package diag defines the two failure channels of the interpreter.
//
// A UBError is a reachable, program-triggerable violation: an aliasing
// violation, an ABI mismatch, reaching unreachable code, unwinding past the
// bottom of the stack, and so on. It always carries a reason, it always
// aborts the run at the point of detection, and it is never recovered from.
//
// An EngineBug is an unreachable-by-construction condition (for example
// releasing a protector that does not exist). It indicates a defect in the
// interpreter itself, never in the interpreted program, and it fails loudly
// via panic so it can never be mistaken for UB.
package diag

import (
	"errors"
	"fmt"
)

// UBError diagnoses undefined behavior in the interpreted program.
//
// Reason is the human-readable diagnosis. Context optionally names the
// operation that detected the violation (terminator, access, intrinsic).
type UBError struct {
	Reason  string
	Context string
}

// Error implements the error interface.
func (e *UBError) Error() string {
	if e.Context != "" {
		return "undefined behavior: " + e.Reason + " (" + e.Context + ")"
	}
	return "undefined behavior: " + e.Reason
}

// UB creates a new UB diagnosis with a formatted reason.
func UB(format string, args ...any) *UBError {
	return &UBError{Reason: fmt.Sprintf(format, args...)}
}

// In returns a copy of the diagnosis annotated with an operation context.
// The original reason is preserved so tests can match on it exactly.
func (e *UBError) In(context string) *UBError {
	return &UBError{Reason: e.Reason, Context: context}
}

// IsUB reports whether err is (or wraps) a UB diagnosis.
func IsUB(err error) bool {
	var ub *UBError
	return errors.As(err, &ub)
}

// AsUB extracts the UB diagnosis from err, or nil if err is not one.
func AsUB(err error) *UBError {
	var ub *UBError
	if errors.As(err, &ub) {
		return ub
	}
	return nil
}

// EngineBug is the payload of the panic raised by Bugf.
type EngineBug struct {
	Reason string
}

// Error implements the error interface so recovered bugs print usefully.
func (b *EngineBug) Error() string {
	return "engine invariant violated: " + b.Reason
}

// Bugf reports a fatal engine-invariant failure.
//
// It panics with an *EngineBug. Callers never recover it into the
// interpreted program's error channel; the process is expected to crash.
func Bugf(format string, args ...any) {
	panic(&EngineBug{Reason: fmt.Sprintf(format, args...)})
}
