package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/ubcheck/internal/ub/ir"
)

// The description syntax models the IR's tagged unions as single-key
// mappings: the key selects the variant, the value carries its fields.
// unionKey splits such a node.
func unionKey(n *yaml.Node) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, fmt.Errorf("expected a single-key mapping, got %s", nodeDesc(n))
	}
	return n.Content[0].Value, n.Content[1], nil
}

func nodeDesc(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return fmt.Sprintf("scalar %q", n.Value)
	case yaml.MappingNode:
		return fmt.Sprintf("mapping with %d keys", len(n.Content)/2)
	case yaml.SequenceNode:
		return "sequence"
	default:
		return "node"
	}
}

// Scalar type names: u8..u64, i8..i64, bool, unit. Everything else uses
// the mapping form.
var intShorthands = map[string]ir.IntType{
	"u8":  {Size: 1},
	"u16": {Size: 2},
	"u32": {Size: 4},
	"u64": {Size: 8},
	"i8":  {Signed: true, Size: 1},
	"i16": {Signed: true, Size: 2},
	"i32": {Signed: true, Size: 4},
	"i64": {Signed: true, Size: 8},
}

func decodeType(n *yaml.Node) (ir.Type, error) {
	if n.Kind == yaml.ScalarNode {
		if it, ok := intShorthands[n.Value]; ok {
			return it, nil
		}
		switch n.Value {
		case "bool":
			return ir.BoolType{}, nil
		case "unit":
			return ir.Unit(), nil
		}
		return nil, fmt.Errorf("unknown type %q", n.Value)
	}
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "int":
		var d struct {
			Signed bool   `yaml:"signed"`
			Size   uint64 `yaml:"size"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		switch d.Size {
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("invalid integer size %d", d.Size)
		}
		return ir.IntType{Signed: d.Signed, Size: d.Size}, nil
	case "ptr":
		return decodePtrType(body)
	case "tuple":
		var d struct {
			Fields []struct {
				Offset uint64    `yaml:"offset"`
				Type   yaml.Node `yaml:"type"`
			} `yaml:"fields"`
			Size  uint64 `yaml:"size"`
			Align uint64 `yaml:"align"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		tt := ir.TupleType{TSize: d.Size, TAlign: d.Align}
		for i := range d.Fields {
			ft, err := decodeType(&d.Fields[i].Type)
			if err != nil {
				return nil, fmt.Errorf("tuple field %d: %w", i, err)
			}
			tt.Fields = append(tt.Fields, ir.TupleField{Offset: d.Fields[i].Offset, Type: ft})
		}
		return tt, nil
	case "array":
		var d struct {
			Elem  yaml.Node `yaml:"elem"`
			Count uint64    `yaml:"count"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		et, err := decodeType(&d.Elem)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return ir.ArrayType{Elem: et, Count: d.Count}, nil
	default:
		return nil, fmt.Errorf("unknown type variant %q", key)
	}
}

func decodePtrType(n *yaml.Node) (ir.PtrType, error) {
	var d struct {
		Kind    string `yaml:"kind"`
		Mutable bool   `yaml:"mutable"`
		Meta    string `yaml:"meta"`
		Pointee *struct {
			Size    uint64 `yaml:"size"`
			Align   uint64 `yaml:"align"`
			Unsized bool   `yaml:"unsized"`
		} `yaml:"pointee"`
	}
	if err := n.Decode(&d); err != nil {
		return ir.PtrType{}, err
	}
	pt := ir.PtrType{Mutable: d.Mutable}
	switch d.Kind {
	case "ref":
		pt.Kind = ir.Ref
	case "box":
		pt.Kind = ir.Box
	case "raw":
		pt.Kind = ir.Raw
	default:
		return ir.PtrType{}, fmt.Errorf("unknown pointer kind %q", d.Kind)
	}
	switch d.Meta {
	case "", "none":
		pt.Meta = ir.MetaNone
	case "len":
		pt.Meta = ir.MetaLen
	case "vtable":
		pt.Meta = ir.MetaVTable
	default:
		return ir.PtrType{}, fmt.Errorf("unknown pointer metadata %q", d.Meta)
	}
	if pt.Kind != ir.Raw {
		if d.Pointee == nil {
			return ir.PtrType{}, fmt.Errorf("%s pointer needs a pointee", d.Kind)
		}
		pt.Pointee = &ir.PointeeInfo{
			Layout:  ir.Layout{Size: d.Pointee.Size, Align: d.Pointee.Align},
			Unsized: d.Pointee.Unsized,
		}
	}
	return pt, nil
}

func decodeValue(n *yaml.Node) (ir.ValueExpr, error) {
	if n.Kind == yaml.ScalarNode && (n.Value == "true" || n.Value == "false") {
		return ir.ConstBool{Value: n.Value == "true"}, nil
	}
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "const_int":
		var d struct {
			Value int64     `yaml:"value"`
			Type  yaml.Node `yaml:"type"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.Type)
		if err != nil {
			return nil, err
		}
		it, ok := ty.(ir.IntType)
		if !ok {
			return nil, fmt.Errorf("const_int needs an integer type")
		}
		return ir.ConstInt{Value: d.Value, Type: it}, nil
	case "const_bool":
		var v bool
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return ir.ConstBool{Value: v}, nil
	case "load":
		place, ty, err := placeAndType(body)
		if err != nil {
			return nil, err
		}
		return ir.Load{Place: place, Type: ty}, nil
	case "addr_of":
		place, ty, err := placeAndType(body)
		if err != nil {
			return nil, err
		}
		pt, ok := ty.(ir.PtrType)
		if !ok {
			return nil, fmt.Errorf("addr_of needs a pointer type")
		}
		return ir.AddrOf{Place: place, Type: pt}, nil
	case "fn_ptr":
		var name string
		if err := body.Decode(&name); err != nil {
			return nil, err
		}
		return ir.FnPtr{Fn: ir.FnName(name)}, nil
	default:
		return nil, fmt.Errorf("unknown value expression %q", key)
	}
}

func placeAndType(n *yaml.Node) (ir.PlaceExpr, ir.Type, error) {
	var d struct {
		Place yaml.Node `yaml:"place"`
		Type  yaml.Node `yaml:"type"`
	}
	if err := n.Decode(&d); err != nil {
		return nil, nil, err
	}
	place, err := decodePlace(&d.Place)
	if err != nil {
		return nil, nil, err
	}
	ty, err := decodeType(&d.Type)
	if err != nil {
		return nil, nil, err
	}
	return place, ty, nil
}

func decodePlace(n *yaml.Node) (ir.PlaceExpr, error) {
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "local":
		var name string
		if err := body.Decode(&name); err != nil {
			return nil, err
		}
		return ir.Local{Name: ir.LocalName(name)}, nil
	case "deref":
		var d struct {
			Value yaml.Node `yaml:"value"`
			Type  yaml.Node `yaml:"type"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		v, err := decodeValue(&d.Value)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.Type)
		if err != nil {
			return nil, err
		}
		return ir.Deref{Value: v, Type: ty}, nil
	default:
		return nil, fmt.Errorf("unknown place expression %q", key)
	}
}

func decodeStatement(n *yaml.Node) (ir.Statement, error) {
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "assign":
		var d struct {
			Dest yaml.Node `yaml:"dest"`
			Src  yaml.Node `yaml:"src"`
			Type yaml.Node `yaml:"type"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		dest, err := decodePlace(&d.Dest)
		if err != nil {
			return nil, err
		}
		src, err := decodeValue(&d.Src)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.Type)
		if err != nil {
			return nil, err
		}
		return ir.Assign{Dest: dest, Src: src, Type: ty}, nil
	case "storage_live":
		var name string
		if err := body.Decode(&name); err != nil {
			return nil, err
		}
		return ir.StorageLive{Local: ir.LocalName(name)}, nil
	case "storage_dead":
		var name string
		if err := body.Decode(&name); err != nil {
			return nil, err
		}
		return ir.StorageDead{Local: ir.LocalName(name)}, nil
	case "validate":
		var d struct {
			Place   yaml.Node `yaml:"place"`
			Type    yaml.Node `yaml:"type"`
			FnEntry bool      `yaml:"fn_entry"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		place, err := decodePlace(&d.Place)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.Type)
		if err != nil {
			return nil, err
		}
		pt, ok := ty.(ir.PtrType)
		if !ok {
			return nil, fmt.Errorf("validate needs a pointer type")
		}
		return ir.Validate{Place: place, Type: pt, FnEntry: d.FnEntry}, nil
	default:
		return nil, fmt.Errorf("unknown statement %q", key)
	}
}

var intrinsicNames = map[string]ir.IntrinsicOp{
	"allocate":           ir.IntrinsicAllocate,
	"deallocate":         ir.IntrinsicDeallocate,
	"exit":               ir.IntrinsicExit,
	"abort":              ir.IntrinsicAbort,
	"spawn":              ir.IntrinsicSpawn,
	"join":               ir.IntrinsicJoin,
	"print":              ir.IntrinsicPrintStdout,
	"eprint":             ir.IntrinsicPrintStderr,
	"get_unwind_payload": ir.IntrinsicGetUnwindPayload,
	"assume":             ir.IntrinsicAssume,
	"raw_eq":             ir.IntrinsicRawEq,
	"atomic_load":        ir.IntrinsicAtomicLoad,
	"atomic_store":       ir.IntrinsicAtomicStore,
	"lock_create":        ir.IntrinsicLockCreate,
	"lock_acquire":       ir.IntrinsicLockAcquire,
	"lock_release":       ir.IntrinsicLockRelease,
}

func decodeTerminator(n *yaml.Node) (ir.Terminator, error) {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "return":
			return ir.Return{}, nil
		case "unreachable":
			return ir.Unreachable{}, nil
		case "resume_unwind":
			return ir.ResumeUnwind{}, nil
		}
		return nil, fmt.Errorf("unknown terminator %q", n.Value)
	}
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "goto":
		var target string
		if err := body.Decode(&target); err != nil {
			return nil, err
		}
		return ir.Goto{Target: ir.BbName(target)}, nil
	case "switch":
		var d struct {
			Value yaml.Node `yaml:"value"`
			Cases []struct {
				Value  int64  `yaml:"value"`
				Target string `yaml:"target"`
			} `yaml:"cases"`
			Fallback string `yaml:"fallback"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		v, err := decodeValue(&d.Value)
		if err != nil {
			return nil, err
		}
		sw := ir.Switch{Value: v, Fallback: ir.BbName(d.Fallback)}
		for _, c := range d.Cases {
			sw.Cases = append(sw.Cases, ir.SwitchCase{Value: c.Value, Target: ir.BbName(c.Target)})
		}
		return sw, nil
	case "call":
		return decodeCall(body)
	case "start_unwind":
		var d struct {
			Payload yaml.Node `yaml:"payload"`
			Target  string    `yaml:"target"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		payload, err := decodeValue(&d.Payload)
		if err != nil {
			return nil, err
		}
		return ir.StartUnwind{Payload: payload, Target: ir.BbName(d.Target)}, nil
	case "stop_unwind":
		var d struct {
			Target string `yaml:"target"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		return ir.StopUnwind{Target: ir.BbName(d.Target)}, nil
	case "intrinsic":
		return decodeIntrinsic(body)
	default:
		return nil, fmt.Errorf("unknown terminator %q", key)
	}
}

func decodeCall(n *yaml.Node) (ir.Terminator, error) {
	var d struct {
		Callee  yaml.Node   `yaml:"callee"`
		Conv    string      `yaml:"conv"`
		Args    []yaml.Node `yaml:"args"`
		Ret     yaml.Node   `yaml:"ret"`
		RetType yaml.Node   `yaml:"ret_type"`
		Next    *string     `yaml:"next"`
		Unwind  *string     `yaml:"unwind"`
	}
	if err := n.Decode(&d); err != nil {
		return nil, err
	}
	callee, err := decodeValue(&d.Callee)
	if err != nil {
		return nil, err
	}
	conv, err := decodeConv(d.Conv)
	if err != nil {
		return nil, err
	}
	call := ir.Call{Callee: callee, Conv: conv}
	for i := range d.Args {
		arg, err := decodeArgument(&d.Args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		call.Args = append(call.Args, arg)
	}
	if d.Ret.IsZero() != d.RetType.IsZero() {
		return nil, fmt.Errorf("call needs both ret and ret_type, or neither")
	}
	if !d.Ret.IsZero() {
		place, err := decodePlace(&d.Ret)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.RetType)
		if err != nil {
			return nil, err
		}
		call.Ret = place
		call.RetType = ty
	}
	if d.Next != nil {
		next := ir.BbName(*d.Next)
		call.Next = &next
	}
	if d.Unwind != nil {
		unwind := ir.BbName(*d.Unwind)
		call.Unwind = &unwind
	}
	return call, nil
}

func decodeArgument(n *yaml.Node) (ir.ArgumentExpr, error) {
	key, body, err := unionKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "by_value":
		var d struct {
			Value yaml.Node `yaml:"value"`
			Type  yaml.Node `yaml:"type"`
		}
		if err := body.Decode(&d); err != nil {
			return nil, err
		}
		v, err := decodeValue(&d.Value)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.Type)
		if err != nil {
			return nil, err
		}
		return ir.ByValue{Value: v, Type: ty}, nil
	case "in_place":
		place, ty, err := placeAndType(body)
		if err != nil {
			return nil, err
		}
		return ir.InPlace{Place: place, Type: ty}, nil
	default:
		return nil, fmt.Errorf("unknown argument expression %q", key)
	}
}

func decodeIntrinsic(n *yaml.Node) (ir.Terminator, error) {
	var d struct {
		Op      string      `yaml:"op"`
		Args    []yaml.Node `yaml:"args"`
		Ret     yaml.Node   `yaml:"ret"`
		RetType yaml.Node   `yaml:"ret_type"`
		Next    *string     `yaml:"next"`
	}
	if err := n.Decode(&d); err != nil {
		return nil, err
	}
	op, ok := intrinsicNames[d.Op]
	if !ok {
		return nil, fmt.Errorf("unknown intrinsic %q", d.Op)
	}
	in := ir.Intrinsic{Op: op}
	for i := range d.Args {
		v, err := decodeValue(&d.Args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in.Args = append(in.Args, v)
	}
	if d.Ret.IsZero() != d.RetType.IsZero() {
		return nil, fmt.Errorf("intrinsic needs both ret and ret_type, or neither")
	}
	if !d.Ret.IsZero() {
		place, err := decodePlace(&d.Ret)
		if err != nil {
			return nil, err
		}
		ty, err := decodeType(&d.RetType)
		if err != nil {
			return nil, err
		}
		in.Ret = place
		in.RetType = ty
	}
	if d.Next != nil {
		next := ir.BbName(*d.Next)
		in.Next = &next
	}
	return in, nil
}
