// Package loader reads program descriptions from YAML and checks them for
// static well-formedness before the engine ever sees them.
//
// Everything the loader rejects is a malformed description, reported as a
// plain error. Undefined behavior is strictly a runtime notion; a program
// that fails to load never starts running.
package loader

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/ubcheck/internal/ub/ir"
)

// FormatVersion is the newest description format this build understands.
// Files declare theirs in a top-level "format" key; anything with a
// different major version or a newer minor version is rejected.
const FormatVersion = "v1.0.0"

type fileDoc struct {
	Format    string  `yaml:"format"`
	Start     string  `yaml:"start"`
	Functions []fnDoc `yaml:"functions"`
}

type fnDoc struct {
	Name   string               `yaml:"name"`
	Conv   string               `yaml:"conv"`
	Args   []string             `yaml:"args"`
	Ret    string               `yaml:"ret"`
	Locals map[string]yaml.Node `yaml:"locals"`
	Start  string               `yaml:"start"`
	Blocks []blockDoc           `yaml:"blocks"`
}

type blockDoc struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	Statements []yaml.Node `yaml:"statements"`
	Terminator yaml.Node   `yaml:"terminator"`
}

// LoadFile loads and validates a program description from a file.
func LoadFile(path string) (*ir.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Load loads and validates a program description.
func Load(r io.Reader) (*ir.Program, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing program description: %w", err)
	}
	if err := checkFormat(doc.Format); err != nil {
		return nil, err
	}
	if doc.Start == "" {
		return nil, fmt.Errorf("program description has no start function")
	}

	prog := &ir.Program{
		Functions: make(map[ir.FnName]*ir.Function, len(doc.Functions)),
		Start:     ir.FnName(doc.Start),
	}
	for _, fd := range doc.Functions {
		fn, err := buildFunction(fd)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fd.Name, err)
		}
		if _, dup := prog.Functions[fn.Name]; dup {
			return nil, fmt.Errorf("function %s declared twice", fn.Name)
		}
		prog.Functions[fn.Name] = fn
	}
	if err := Validate(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func checkFormat(format string) error {
	if format == "" {
		return fmt.Errorf("program description has no format version")
	}
	if !semver.IsValid(format) {
		return fmt.Errorf("invalid format version %q", format)
	}
	if semver.Major(format) != semver.Major(FormatVersion) {
		return fmt.Errorf("unsupported format version %s, this build reads %s",
			format, semver.Major(FormatVersion))
	}
	if semver.Compare(semver.Canonical(format), FormatVersion) > 0 {
		return fmt.Errorf("format version %s is newer than supported %s", format, FormatVersion)
	}
	return nil
}

func buildFunction(fd fnDoc) (*ir.Function, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	conv, err := decodeConv(fd.Conv)
	if err != nil {
		return nil, err
	}
	fn := &ir.Function{
		Name:   ir.FnName(fd.Name),
		Conv:   conv,
		Ret:    ir.LocalName(fd.Ret),
		Locals: make(map[ir.LocalName]ir.Type, len(fd.Locals)),
		Blocks: make(map[ir.BbName]*ir.BasicBlock, len(fd.Blocks)),
		Start:  ir.BbName(fd.Start),
	}
	for _, a := range fd.Args {
		fn.Args = append(fn.Args, ir.LocalName(a))
	}
	for name, node := range fd.Locals {
		n := node
		ty, err := decodeType(&n)
		if err != nil {
			return nil, fmt.Errorf("local %s: %w", name, err)
		}
		fn.Locals[ir.LocalName(name)] = ty
	}
	for _, bd := range fd.Blocks {
		bb, err := buildBlock(bd)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", bd.Name, err)
		}
		if _, dup := fn.Blocks[ir.BbName(bd.Name)]; dup {
			return nil, fmt.Errorf("block %s declared twice", bd.Name)
		}
		fn.Blocks[ir.BbName(bd.Name)] = bb
	}
	return fn, nil
}

func buildBlock(bd blockDoc) (*ir.BasicBlock, error) {
	if bd.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	kind, err := decodeBlockKind(bd.Kind)
	if err != nil {
		return nil, err
	}
	bb := &ir.BasicBlock{Kind: kind}
	for i, sn := range bd.Statements {
		n := sn
		s, err := decodeStatement(&n)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		bb.Statements = append(bb.Statements, s)
	}
	if bd.Terminator.IsZero() {
		return nil, fmt.Errorf("missing terminator")
	}
	term, err := decodeTerminator(&bd.Terminator)
	if err != nil {
		return nil, fmt.Errorf("terminator: %w", err)
	}
	bb.Term = term
	return bb, nil
}

func decodeConv(s string) (ir.CallingConvention, error) {
	switch s {
	case "", "rust":
		return ir.ConvRust, nil
	case "c":
		return ir.ConvC, nil
	default:
		return 0, fmt.Errorf("unknown calling convention %q", s)
	}
}

func decodeBlockKind(s string) (ir.BbKind, error) {
	switch s {
	case "", "regular":
		return ir.BbRegular, nil
	case "cleanup":
		return ir.BbCleanup, nil
	case "catch":
		return ir.BbCatch, nil
	case "terminate":
		return ir.BbTerminate, nil
	default:
		return 0, fmt.Errorf("unknown block kind %q", s)
	}
}
