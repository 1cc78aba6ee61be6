// Package ast defines the program model produced by the lexer/parser
// front end and consumed read-only by the virtual machine.
package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sovereign-vm/sovereign/internal/token"
)

// OperandKind identifies which of the five operand shapes an Operand
// carries.
type OperandKind int

const (
	KindRegister OperandKind = iota
	KindImmediate
	KindAddress
	KindString
	KindLabelRef
)

// Operand is one instruction argument: a register, an immediate, a
// memory address, a string literal, or a label reference. Exactly one
// of the typed fields is meaningful, selected by Kind.
type Operand struct {
	Kind OperandKind

	Register  uint8
	Immediate int64
	Address   string // address text after '@', preserved verbatim as an opaque key
	Str       string
	Label     string

	Tok token.Token
}

// RegisterOperand builds a register operand.
func RegisterOperand(n uint8, tok token.Token) Operand {
	return Operand{Kind: KindRegister, Register: n, Tok: tok}
}

// ImmediateOperand builds an immediate operand.
func ImmediateOperand(v int64, tok token.Token) Operand {
	return Operand{Kind: KindImmediate, Immediate: v, Tok: tok}
}

// AddressOperand builds an address operand. addr is the address text
// verbatim, not normalized or parsed to an integer (spec.md §9.c).
func AddressOperand(addr string, tok token.Token) Operand {
	return Operand{Kind: KindAddress, Address: addr, Tok: tok}
}

// StringOperand builds a string-literal operand.
func StringOperand(s string, tok token.Token) Operand {
	return Operand{Kind: KindString, Str: s, Tok: tok}
}

// LabelRefOperand builds a label-reference operand.
func LabelRefOperand(name string, tok token.Token) Operand {
	return Operand{Kind: KindLabelRef, Label: name, Tok: tok}
}

// String renders the operand back to its canonical source form.
func (o Operand) String() string {
	switch o.Kind {
	case KindRegister:
		return "r" + strconv.Itoa(int(o.Register))
	case KindImmediate:
		return "#" + strconv.FormatInt(o.Immediate, 10)
	case KindAddress:
		return "@" + o.Address
	case KindString:
		return strconv.Quote(o.Str)
	case KindLabelRef:
		return o.Label
	default:
		return "?"
	}
}

// Instruction is a single mnemonic with its ordered operands.
// Mnemonic is always canonicalized to uppercase ASCII.
type Instruction struct {
	Mnemonic string
	Operands []Operand
	Tok      token.Token // position of the opcode token
}

// String renders the instruction back to its canonical source form.
func (in *Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Mnemonic)
	for _, op := range in.Operands {
		b.WriteByte(' ')
		b.WriteString(op.String())
	}
	return b.String()
}

// Program is the immutable, ordered sequence of instructions produced
// by parsing, plus the label name -> instruction index map. An index
// in Labels points at the instruction immediately following the
// label, per spec.md §3.
type Program struct {
	Instructions []*Instruction
	Labels       map[string]int
}

// New builds a Program from its parts. The slice and map are retained
// by reference; callers must treat the Program as immutable afterward.
func New(instructions []*Instruction, labels map[string]int) *Program {
	if labels == nil {
		labels = map[string]int{}
	}
	return &Program{Instructions: instructions, Labels: labels}
}

// Length returns the number of instructions in the program.
func (p *Program) Length() int {
	if p == nil {
		return 0
	}
	return len(p.Instructions)
}

// InstructionAt returns the instruction at index i, or nil if out of
// range.
func (p *Program) InstructionAt(i int) *Instruction {
	if p == nil || i < 0 || i >= len(p.Instructions) {
		return nil
	}
	return p.Instructions[i]
}

// LabelIndex resolves a label name to an instruction index. The
// second return value is false if the label is undefined.
func (p *Program) LabelIndex(name string) (int, bool) {
	if p == nil {
		return 0, false
	}
	idx, ok := p.Labels[name]
	return idx, ok
}

// Equal reports whether two programs are structurally identical:
// same instructions in the same order with the same operands, and the
// same label -> index mapping. Used by the parser round-trip property
// test (spec.md §8).
func (p *Program) Equal(other *Program) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.Instructions) != len(other.Instructions) {
		return false
	}
	for i, in := range p.Instructions {
		o := other.Instructions[i]
		if in.Mnemonic != o.Mnemonic || len(in.Operands) != len(o.Operands) {
			return false
		}
		for j, op := range in.Operands {
			oo := o.Operands[j]
			if op.Kind != oo.Kind || op.Register != oo.Register ||
				op.Immediate != oo.Immediate || op.Address != oo.Address ||
				op.Str != oo.Str || op.Label != oo.Label {
				return false
			}
		}
	}
	if len(p.Labels) != len(other.Labels) {
		return false
	}
	for name, idx := range p.Labels {
		if oidx, ok := other.Labels[name]; !ok || oidx != idx {
			return false
		}
	}
	return true
}

// String renders the program back to canonical source text: each
// label printed immediately before the instruction it points at,
// instructions indented two spaces, in source order. Round-tripping
// this output through Parse must reproduce an equal Program
// (spec.md §8).
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	// Invert the label map once: instruction index -> label names
	// that target it, preserving a stable order for reproducibility.
	byIndex := make(map[int][]string, len(p.Labels))
	for name, idx := range p.Labels {
		byIndex[idx] = append(byIndex[idx], name)
	}
	for _, names := range byIndex {
		sort.Strings(names)
	}

	var b strings.Builder
	for i, in := range p.Instructions {
		for _, name := range byIndex[i] {
			fmt.Fprintf(&b, "%s:\n", name)
		}
		b.WriteString("  ")
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	// Labels pointing past the last instruction (e.g. a trailing
	// label with no code after it) still round-trip.
	for _, name := range byIndex[len(p.Instructions)] {
		fmt.Fprintf(&b, "%s:\n", name)
	}
	return b.String()
}
