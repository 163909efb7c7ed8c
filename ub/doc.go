// Package ub executes low-level CFG programs under a checked semantics
// that makes every instance of undefined behavior a detected, reported
// event instead of a silent one.
//
// # What is checked
//
// Programs are loaded from YAML descriptions (see the loader format,
// gated by the top-level "format" key) and executed by an interpreter
// that models memory at the byte level:
//
//   - every allocation is tracked from creation to deallocation, so use
//     after free, out-of-bounds and misaligned accesses, double frees and
//     layout-mismatched frees are diagnosed exactly;
//   - every pointer carries provenance, and each allocation maintains a
//     tree of permissions over its bytes; reads and writes through stale
//     or aliasing-incompatible pointers are diagnosed as the aliasing
//     discipline is enforced on every access;
//   - calls check calling convention, arity, and per-argument and return
//     ABI compatibility before the callee runs;
//   - unwinding, cooperative threads, locks and atomics are modeled, so
//     deadlocks and cross-thread misuse surface deterministically.
//
// # Basic usage
//
//	res, err := ub.RunFile("program.yaml", ub.Options{})
//	if err != nil {
//		// the description itself is malformed
//	}
//	if res.Kind == ub.UndefinedBehavior {
//		res.Diagnosis.Report(os.Stderr)
//	}
//
// A Result is always produced for a loadable program: a clean exit, an
// abort, a deadlock, or an undefined-behavior diagnosis with the reason
// and the position it was detected at.
//
// # Determinism
//
// Execution is deterministic: threads are cooperative and scheduled
// round-robin, and allocation addresses are assigned reproducibly. A
// program that trips undefined behavior does so at the same step on
// every run.
package ub
