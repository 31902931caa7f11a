// Package kernels defines the primitive operation vocabulary shared by the
// compiler, the reference evaluator and both executors.
//
// Every operation is described by an OpSpec: its name and opcode, its
// operand and result kinds, the capability class it needs, and up to two
// implementations: one over canonical states (fast backend) and one over
// algebra elements (general backend). Specs live in a Registry that is
// created once, preloaded with the builtin catalog, and handed to the
// compiler and the runtime. New atom kinds are added by registering a
// spec; nothing in the core changes.
//
// Builtin operations:
//   - Ring: add, sub, mul over Z96 with drop or track overflow
//   - Transforms: R, D, T, M with a power
//   - Algebra: multiply, algebra.add, scale, gradeProject
//   - Bridge: lift, project
//   - Internal: identity, table
package kernels

import (
	"fmt"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
	"github.com/sbl8/dualc/value"
)

// Operation codes of the builtin catalog. Codes from OpCustomBase up are
// assigned to registered extensions.
const (
	OpIdentity     = 0x00
	OpAdd          = 0x01
	OpSub          = 0x02
	OpMul          = 0x03
	OpR            = 0x10
	OpD            = 0x11
	OpT            = 0x12
	OpM            = 0x13
	OpTable        = 0x18
	OpLift         = 0x20
	OpProject      = 0x21
	OpMultiply     = 0x30
	OpAlgebraAdd   = 0x31
	OpScale        = 0x32
	OpGradeProject = 0x33

	OpCustomBase = 0x80
)

// Builtin operation names as they appear in descriptors.
const (
	NameIdentity     = "identity"
	NameAdd          = "add"
	NameSub          = "sub"
	NameMul          = "mul"
	NameTable        = "table"
	NameLift         = "lift"
	NameProject      = "project"
	NameMultiply     = "multiply"
	NameAlgebraAdd   = "algebra.add"
	NameScale        = "scale"
	NameGradeProject = "gradeProject"
)

// Capability is the weakest backend an operation can run on.
type Capability uint8

const (
	// CapStateOnly ops are total over canonical states.
	CapStateOnly Capability = iota
	// CapRank1 ops move between states and rank-1 elements.
	CapRank1
	// CapFull ops need the full algebra.
	CapFull
)

func (c Capability) String() string {
	switch c {
	case CapStateOnly:
		return "state-only"
	case CapRank1:
		return "rank-1"
	case CapFull:
		return "full"
	}
	return fmt.Sprintf("Capability(%d)", uint8(c))
}

// Role distinguishes operations the executors treat structurally.
type Role uint8

const (
	RoleCompute Role = iota
	RoleIdentity
	RoleLift
	RoleProject
)

// OverflowMode selects how ring operations report wraparound.
type OverflowMode uint8

const (
	OverflowDrop OverflowMode = iota
	OverflowTrack
)

func (m OverflowMode) String() string {
	if m == OverflowTrack {
		return "track"
	}
	return "drop"
}

// ParseOverflowMode maps "", "drop" or "track" to a mode.
func ParseOverflowMode(s string) (OverflowMode, error) {
	switch s {
	case "", "drop":
		return OverflowDrop, nil
	case "track":
		return OverflowTrack, nil
	}
	return 0, fmt.Errorf("unknown overflow mode %q", s)
}

// Params carries the per-atom parameters. Fields an op does not use are
// zero.
type Params struct {
	Power    int
	Grade    int
	Scalar   float64
	Overflow OverflowMode
	Table    *core.Table
}

// Equal compares two parameter sets, tables by content.
func (p Params) Equal(q Params) bool {
	if p.Power != q.Power || p.Grade != q.Grade || p.Scalar != q.Scalar || p.Overflow != q.Overflow {
		return false
	}
	if (p.Table == nil) != (q.Table == nil) {
		return false
	}
	return p.Table == nil || *p.Table == *q.Table
}

// Overflow records a wraparound observed by a ring operation in track mode.
// Carry is the quotient of the exact result by 96; a borrow is -1.
type Overflow struct {
	Step  int
	Op    string
	Carry int
}

// StateFn computes an op over canonical states. It returns the result and
// the carry out of Z96, zero when the op cannot overflow.
type StateFn func(p *Params, args []core.Class) (core.Class, int)

// ElementFn computes an op over algebra elements into dst. dst never
// aliases an argument.
type ElementFn func(dst *algebra.Element, p *Params, args []*algebra.Element)

// OpSpec describes one operation.
type OpSpec struct {
	Name  string
	Code  uint8
	Arity int

	// In is the operand kind; KindAny accepts either.
	In value.Kind
	// Out is the result kind; KindAny means the operand kind.
	Out value.Kind

	Capability Capability
	Role       Role

	State   StateFn
	Element ElementFn

	// Inverse names the op that undoes this one when applied directly after.
	Inverse string

	Commutative bool

	// Transform marks R, D, T and M; Generator says which.
	Transform bool
	Generator core.Generator

	// Ring marks add, sub and mul, whose overflow mode matters.
	Ring bool
}

// ResultKind returns the result kind of the op applied to operands of the
// given kind.
func (s *OpSpec) ResultKind(operand value.Kind) value.Kind {
	if s.Out == value.KindAny {
		return operand
	}
	return s.Out
}

// Unary reports whether the op takes one operand.
func (s *OpSpec) Unary() bool { return s.Arity == 1 }

// FastCapable reports whether the fast backend can execute the op.
func (s *OpSpec) FastCapable() bool {
	return s.Role != RoleCompute || s.State != nil
}
