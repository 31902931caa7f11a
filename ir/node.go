// Package ir holds the intermediate representation between a descriptor
// and a lowered plan, together with its rewrite engine.
//
// A program is a Node: an Atom (one primitive op applied to operands), a
// Sequence (nodes evaluated in order, each able to read the value of the
// one before it through a Prev operand), or a Constant (a value known at
// compile time). Normalize rewrites a node to its normal form with a fixed,
// terminating and confluent rule set; Eval interprets any node directly and
// serves as the reference the executors are checked against.
package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sbl8/dualc/core"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/value"
)

// Node is an Atom, a Sequence or a Constant.
type Node interface {
	node()
}

// OperandKind says where an operand's value comes from.
type OperandKind uint8

const (
	OperandConst OperandKind = iota
	OperandInput
	OperandPrev
)

// Operand is one argument of an Atom. Type is its static kind.
type Operand struct {
	Kind  OperandKind
	Name  string
	Value value.Value
	Type  value.Kind
}

// Const returns a compile-time operand.
func Const(v value.Value) Operand {
	return Operand{Kind: OperandConst, Value: v, Type: v.Kind()}
}

// Input returns an operand bound at run time under name.
func Input(name string, k value.Kind) Operand {
	return Operand{Kind: OperandInput, Name: name, Type: k}
}

// Prev returns an operand reading the preceding node's value.
func Prev(k value.Kind) Operand {
	return Operand{Kind: OperandPrev, Type: k}
}

// Atom applies one op to its operands. Step is the position of the op in
// the descriptor and survives rewriting, so overflow records point back
// at the declaration that produced them.
type Atom struct {
	Op     *kernels.OpSpec
	Args   []Operand
	Params kernels.Params
	Step   int
}

// Sequence evaluates its nodes in order; its value is the last node's.
type Sequence struct {
	Nodes []Node
}

// Constant is a value folded at compile time. Overflow holds the records
// tracked ring ops produced while folding.
type Constant struct {
	Value    value.Value
	Overflow []kernels.Overflow
}

func (*Atom) node()     {}
func (*Sequence) node() {}
func (*Constant) node() {}

// UsesPrev reports whether any operand of a reads the preceding value.
func (a *Atom) UsesPrev() bool {
	for _, arg := range a.Args {
		if arg.Kind == OperandPrev {
			return true
		}
	}
	return false
}

// OperandKind returns the common static kind of a's operands.
func (a *Atom) OperandKind() value.Kind {
	return a.Args[0].Type
}

// ResultKind returns the static kind a evaluates to.
func (a *Atom) ResultKind() value.Kind {
	return a.Op.ResultKind(a.OperandKind())
}

func (a *Atom) clone() *Atom {
	out := *a
	out.Args = append([]Operand(nil), a.Args...)
	return &out
}

// ResultKind returns the static kind n evaluates to.
func ResultKind(n Node) value.Kind {
	switch x := n.(type) {
	case *Atom:
		return x.ResultKind()
	case *Constant:
		return x.Value.Kind()
	case *Sequence:
		return ResultKind(x.Nodes[len(x.Nodes)-1])
	}
	panic(fmt.Sprintf("ir: unknown node %T", n))
}

// Atoms returns every atom of n in evaluation order.
func Atoms(n Node) []*Atom {
	var out []*Atom
	walk(n, func(x Node) {
		if a, ok := x.(*Atom); ok {
			out = append(out, a)
		}
	})
	return out
}

// Flatten returns the leaf nodes of n in evaluation order.
func Flatten(n Node) []Node {
	var out []Node
	walk(n, func(x Node) {
		if _, ok := x.(*Sequence); !ok {
			out = append(out, x)
		}
	})
	return out
}

func walk(n Node, fn func(Node)) {
	fn(n)
	if s, ok := n.(*Sequence); ok {
		for _, c := range s.Nodes {
			walk(c, fn)
		}
	}
}

// Equal reports structural equality. Ops compare by name. Steps compare
// only on atoms that track overflow, the one place a step is observable.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Atom:
		y, ok := b.(*Atom)
		if !ok || x.Op.Name != y.Op.Name || !x.Params.Equal(y.Params) || len(x.Args) != len(y.Args) {
			return false
		}
		if x.Params.Overflow == kernels.OverflowTrack && x.Step != y.Step {
			return false
		}
		for i := range x.Args {
			if !operandEqual(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case *Constant:
		y, ok := b.(*Constant)
		if !ok || !value.Equal(x.Value, y.Value) || len(x.Overflow) != len(y.Overflow) {
			return false
		}
		for i := range x.Overflow {
			if x.Overflow[i] != y.Overflow[i] {
				return false
			}
		}
		return true
	case *Sequence:
		y, ok := b.(*Sequence)
		if !ok || len(x.Nodes) != len(y.Nodes) {
			return false
		}
		for i := range x.Nodes {
			if !Equal(x.Nodes[i], y.Nodes[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func operandEqual(a, b Operand) bool {
	if a.Kind != b.Kind || a.Type != b.Type {
		return false
	}
	switch a.Kind {
	case OperandInput:
		return a.Name == b.Name
	case OperandConst:
		return value.Equal(a.Value, b.Value)
	}
	return true
}

// Format renders n in a canonical one-line text form. Structurally equal
// nodes format identically, steps excluded.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)
	return b.String()
}

func format(b *strings.Builder, n Node) {
	switch x := n.(type) {
	case *Atom:
		b.WriteString(x.Op.Name)
		b.WriteString(formatParams(x))
		b.WriteString("(")
		for i, arg := range x.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatOperand(arg))
		}
		b.WriteString(")")
	case *Constant:
		b.WriteString("const(")
		b.WriteString(formatValue(x.Value))
		b.WriteString(")")
		for _, o := range x.Overflow {
			fmt.Fprintf(b, "!%s@%d%+d", o.Op, o.Step, o.Carry)
		}
	case *Sequence:
		b.WriteString("seq(")
		for i, c := range x.Nodes {
			if i > 0 {
				b.WriteString("; ")
			}
			format(b, c)
		}
		b.WriteString(")")
	}
}

func formatParams(a *Atom) string {
	switch {
	case a.Op.Transform:
		return fmt.Sprintf("^%d", a.Params.Power)
	case a.Op.Ring && a.Params.Overflow == kernels.OverflowTrack:
		return "[track]"
	case a.Op.Name == kernels.NameScale:
		return fmt.Sprintf("[%g]", a.Params.Scalar)
	case a.Op.Name == kernels.NameGradeProject:
		return fmt.Sprintf("[%d]", a.Params.Grade)
	case a.Params.Table != nil:
		return fmt.Sprintf("[%x]", core.EncodeStates(a.Params.Table[:]))
	}
	return ""
}

// FormatOperand renders one operand: "$", "in:name" or a constant.
func FormatOperand(o Operand) string {
	switch o.Kind {
	case OperandPrev:
		return "$"
	case OperandInput:
		return "in:" + o.Name
	}
	return formatValue(o.Value)
}

func formatValue(v value.Value) string {
	switch x := v.(type) {
	case value.State:
		return fmt.Sprintf("#%d", x.Class.Index())
	case value.Element:
		return "{" + x.Elem.String() + "}"
	}
	return "?"
}

// operandKey orders operands of commutative ops: Prev first, then inputs
// by name, then constants.
func operandKey(o Operand) (int, string) {
	switch o.Kind {
	case OperandPrev:
		return 0, ""
	case OperandInput:
		return 1, o.Name
	}
	if s, ok := value.AsState(o.Value); ok {
		return 2, fmt.Sprintf("%03d", s.Index())
	}
	return 3, formatValue(o.Value)
}

func sortOperands(args []Operand) {
	sort.SliceStable(args, func(i, j int) bool {
		ri, ki := operandKey(args[i])
		rj, kj := operandKey(args[j])
		if ri != rj {
			return ri < rj
		}
		return ki < kj
	})
}
