package loader

import (
	"fmt"

	"github.com/kolkov/ubcheck/internal/ub/ir"
)

// Validate checks a program for static well-formedness: the start function
// and every referenced block, local, and function must exist, and every
// block's terminator must be legal for the block's kind. The engine relies
// on these properties and does not re-check them.
func Validate(prog *ir.Program) error {
	start, ok := prog.Functions[prog.Start]
	if !ok {
		return fmt.Errorf("start function %s does not exist", prog.Start)
	}
	if len(start.Args) != 0 {
		return fmt.Errorf("start function %s must not take arguments", prog.Start)
	}
	for _, fn := range prog.Functions {
		if err := validateFunction(prog, fn); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func validateFunction(prog *ir.Program, fn *ir.Function) error {
	if _, ok := fn.Blocks[fn.Start]; !ok {
		return fmt.Errorf("start block %s does not exist", fn.Start)
	}
	for _, arg := range fn.Args {
		if _, ok := fn.Locals[arg]; !ok {
			return fmt.Errorf("argument local %s is not declared", arg)
		}
	}
	if fn.Ret != "" {
		if _, ok := fn.Locals[fn.Ret]; !ok {
			return fmt.Errorf("return local %s is not declared", fn.Ret)
		}
	}
	for name, bb := range fn.Blocks {
		if err := validateBlock(prog, fn, bb); err != nil {
			return fmt.Errorf("block %s: %w", name, err)
		}
	}
	return nil
}

func validateBlock(prog *ir.Program, fn *ir.Function, bb *ir.BasicBlock) error {
	for i, s := range bb.Statements {
		if err := validateStatement(prog, fn, s); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return validateTerminator(prog, fn, bb)
}

func validateStatement(prog *ir.Program, fn *ir.Function, s ir.Statement) error {
	switch st := s.(type) {
	case ir.Assign:
		if err := validatePlace(prog, fn, st.Dest); err != nil {
			return err
		}
		return validateValue(prog, fn, st.Src)
	case ir.StorageLive:
		return requireLocal(fn, st.Local)
	case ir.StorageDead:
		return requireLocal(fn, st.Local)
	case ir.Validate:
		return validatePlace(prog, fn, st.Place)
	default:
		return fmt.Errorf("unknown statement %T", s)
	}
}

// Terminator legality per block kind: control flow never crosses from one
// kind into another except through the dedicated unwind edges.
//
//   - fallthrough edges (goto, switch, call next, intrinsic next, stop
//     unwind target) stay within control flow of the same phase,
//   - return and start_unwind belong to regular blocks,
//   - resume_unwind belongs to cleanup blocks,
//   - stop_unwind belongs to catch blocks and resumes regular flow,
//   - unwind edges of calls lead into cleanup or catch blocks and never
//     originate in a catch block.
func validateTerminator(prog *ir.Program, fn *ir.Function, bb *ir.BasicBlock) error {
	switch t := bb.Term.(type) {
	case ir.Goto:
		return requireTarget(fn, bb.Kind, t.Target)

	case ir.Switch:
		if err := validateValue(prog, fn, t.Value); err != nil {
			return err
		}
		for _, c := range t.Cases {
			if err := requireTarget(fn, bb.Kind, c.Target); err != nil {
				return err
			}
		}
		return requireTarget(fn, bb.Kind, t.Fallback)

	case ir.Unreachable:
		return nil

	case ir.Return:
		if bb.Kind != ir.BbRegular {
			return fmt.Errorf("return in a %s block", bb.Kind)
		}
		return nil

	case ir.Call:
		if err := validateValue(prog, fn, t.Callee); err != nil {
			return err
		}
		for i, a := range t.Args {
			var err error
			switch arg := a.(type) {
			case ir.ByValue:
				err = validateValue(prog, fn, arg.Value)
			case ir.InPlace:
				err = validatePlace(prog, fn, arg.Place)
			default:
				err = fmt.Errorf("unknown argument expression %T", a)
			}
			if err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
		}
		if t.RetType != nil {
			if err := validatePlace(prog, fn, t.Ret); err != nil {
				return err
			}
		}
		if t.Next != nil {
			if err := requireTarget(fn, bb.Kind, *t.Next); err != nil {
				return err
			}
		}
		if t.Unwind != nil {
			if bb.Kind == ir.BbCatch {
				return fmt.Errorf("unwind edge out of a catch block")
			}
			target, ok := fn.Blocks[*t.Unwind]
			if !ok {
				return fmt.Errorf("unwind target %s does not exist", *t.Unwind)
			}
			if target.Kind != ir.BbCleanup && target.Kind != ir.BbCatch {
				return fmt.Errorf("unwind target %s is a %s block", *t.Unwind, target.Kind)
			}
		}
		return nil

	case ir.StartUnwind:
		if bb.Kind != ir.BbRegular {
			return fmt.Errorf("start_unwind in a %s block", bb.Kind)
		}
		if err := validateValue(prog, fn, t.Payload); err != nil {
			return err
		}
		target, ok := fn.Blocks[t.Target]
		if !ok {
			return fmt.Errorf("target %s does not exist", t.Target)
		}
		if target.Kind != ir.BbCleanup {
			return fmt.Errorf("start_unwind target %s is a %s block", t.Target, target.Kind)
		}
		return nil

	case ir.StopUnwind:
		if bb.Kind != ir.BbCatch {
			return fmt.Errorf("stop_unwind in a %s block", bb.Kind)
		}
		target, ok := fn.Blocks[t.Target]
		if !ok {
			return fmt.Errorf("target %s does not exist", t.Target)
		}
		if target.Kind != ir.BbRegular {
			return fmt.Errorf("stop_unwind target %s is a %s block", t.Target, target.Kind)
		}
		return nil

	case ir.ResumeUnwind:
		if bb.Kind != ir.BbCleanup {
			return fmt.Errorf("resume_unwind in a %s block", bb.Kind)
		}
		return nil

	case ir.Intrinsic:
		for i, a := range t.Args {
			if err := validateValue(prog, fn, a); err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
		}
		if t.RetType != nil {
			if err := validatePlace(prog, fn, t.Ret); err != nil {
				return err
			}
		}
		if t.Next == nil {
			if t.Op != ir.IntrinsicExit && t.Op != ir.IntrinsicAbort {
				return fmt.Errorf("intrinsic %s needs a next block", t.Op)
			}
			return nil
		}
		return requireTarget(fn, bb.Kind, *t.Next)

	default:
		return fmt.Errorf("unknown terminator %T", bb.Term)
	}
}

func validateValue(prog *ir.Program, fn *ir.Function, e ir.ValueExpr) error {
	switch v := e.(type) {
	case ir.ConstInt, ir.ConstBool:
		return nil
	case ir.Load:
		return validatePlace(prog, fn, v.Place)
	case ir.AddrOf:
		return validatePlace(prog, fn, v.Place)
	case ir.FnPtr:
		if _, ok := prog.Functions[v.Fn]; !ok {
			return fmt.Errorf("function %s does not exist", v.Fn)
		}
		return nil
	default:
		return fmt.Errorf("unknown value expression %T", e)
	}
}

func validatePlace(prog *ir.Program, fn *ir.Function, e ir.PlaceExpr) error {
	switch p := e.(type) {
	case ir.Local:
		return requireLocal(fn, p.Name)
	case ir.Deref:
		return validateValue(prog, fn, p.Value)
	default:
		return fmt.Errorf("unknown place expression %T", e)
	}
}

func requireLocal(fn *ir.Function, name ir.LocalName) error {
	if _, ok := fn.Locals[name]; !ok {
		return fmt.Errorf("local %s is not declared", name)
	}
	return nil
}

func requireTarget(fn *ir.Function, from ir.BbKind, target ir.BbName) error {
	bb, ok := fn.Blocks[target]
	if !ok {
		return fmt.Errorf("target %s does not exist", target)
	}
	if bb.Kind != from {
		return fmt.Errorf("edge from a %s block into %s block %s", from, bb.Kind, target)
	}
	return nil
}
