// Package model defines the data the compiler consumes and produces.
//
// A Descriptor is the declarative input: compiled and runtime parameters,
// an optional complexity hint and backend preference, and the ordered op
// declarations. Descriptors load from YAML or from a line-oriented text
// form.
//
// A Plan is the compiled output: a linear list of ops for exactly one
// backend. ClassPlan runs on canonical states; AlgebraPlan runs on algebra
// elements. Both share a Header recording the computation class, the
// declared inputs and where the result comes from.
//
// Plans are immutable after compilation and safe to execute from any
// number of goroutines. They serialize to a compact binary form for plan
// files and the persistent plan store.
package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/value"
)

// Backend selects the executor a plan targets.
type Backend uint8

const (
	BackendFast Backend = iota
	BackendGeneral
)

func (b Backend) String() string {
	if b == BackendGeneral {
		return PreferGeneral
	}
	return PreferFast
}

// Complexity is the computation class, ordered C0 < C1 < C2 < C3.
type Complexity uint8

const (
	C0 Complexity = iota // constant
	C1                   // state-only
	C2                   // rank-1 crossing between states and elements
	C3                   // full algebra
)

func (c Complexity) String() string {
	return fmt.Sprintf("C%d", uint8(c))
}

// ParseComplexity maps "C0".."C3" to a class.
func ParseComplexity(s string) (Complexity, error) {
	for c := C0; c <= C3; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown complexity class %q", s)
}

// RefKind says where a plan operand reads from.
type RefKind uint8

const (
	// RefPrev reads the result of the preceding op.
	RefPrev RefKind = iota
	RefInput
	RefConst
)

// Ref is a plan operand.
type Ref struct {
	Kind  RefKind
	Name  string // RefInput
	Index int    // RefConst: index into the plan's constants
}

func (r Ref) String() string {
	switch r.Kind {
	case RefInput:
		return "in:" + r.Name
	case RefConst:
		return fmt.Sprintf("const[%d]", r.Index)
	}
	return "$"
}

// Op is one lowered operation.
type Op struct {
	Code   uint8
	Name   string
	Args   []Ref
	Params kernels.Params
	// ArgKind is the static kind of the operands.
	ArgKind value.Kind
	// Step is the index of the descriptor op this came from.
	Step int
}

// Input is a declared runtime parameter.
type Input struct {
	Name string
	Kind value.Kind
}

// Header is shared by both plan variants.
type Header struct {
	ID          uuid.UUID
	Name        string
	Version     string
	Namespace   string
	Fingerprint string

	Class  Complexity
	Inputs []Input

	Output     Ref
	OutputKind value.Kind

	// StaticOverflow holds overflow records produced while folding
	// constants; they are reported by every run.
	StaticOverflow []kernels.Overflow
}

// Plan is a ClassPlan or an AlgebraPlan.
type Plan interface {
	PlanHeader() *Header
	Backend() Backend
	PlanOps() []Op
	NumConsts() int
	Validate() error
	plan()
}

// ClassPlan runs on the fast backend over canonical states.
type ClassPlan struct {
	Header
	Consts []core.Class
	Ops    []Op
}

// AlgebraPlan runs on the general backend over algebra elements.
type AlgebraPlan struct {
	Header
	Consts []*algebra.Element
	Ops    []Op
}

func (p *ClassPlan) PlanHeader() *Header   { return &p.Header }
func (p *AlgebraPlan) PlanHeader() *Header { return &p.Header }

func (*ClassPlan) Backend() Backend   { return BackendFast }
func (*AlgebraPlan) Backend() Backend { return BackendGeneral }

func (p *ClassPlan) PlanOps() []Op   { return p.Ops }
func (p *AlgebraPlan) PlanOps() []Op { return p.Ops }

func (p *ClassPlan) NumConsts() int   { return len(p.Consts) }
func (p *AlgebraPlan) NumConsts() int { return len(p.Consts) }

func (*ClassPlan) plan()   {}
func (*AlgebraPlan) plan() {}

// Validate checks that every reference resolves.
func (p *ClassPlan) Validate() error {
	for i, c := range p.Consts {
		if !c.Valid() {
			return dcerrors.CorruptPlan("constant %d is not a valid state", i)
		}
	}
	return validatePlan(p)
}

// Validate checks that every reference resolves.
func (p *AlgebraPlan) Validate() error {
	for i, e := range p.Consts {
		if e == nil {
			return dcerrors.CorruptPlan("constant %d is nil", i)
		}
	}
	return validatePlan(p)
}

func validatePlan(p Plan) error {
	h := p.PlanHeader()
	inputs := make(map[string]bool, len(h.Inputs))
	for _, in := range h.Inputs {
		if inputs[in.Name] {
			return dcerrors.CorruptPlan("input %q declared twice", in.Name)
		}
		inputs[in.Name] = true
	}
	check := func(r Ref, opIndex int) error {
		switch r.Kind {
		case RefPrev:
			if opIndex == 0 {
				return dcerrors.CorruptPlan("op %d reads a preceding result that does not exist", opIndex)
			}
		case RefInput:
			if !inputs[r.Name] {
				return dcerrors.CorruptPlan("op %d reads undeclared input %q", opIndex, r.Name)
			}
		case RefConst:
			if r.Index < 0 || r.Index >= p.NumConsts() {
				return dcerrors.CorruptPlan("op %d reads constant %d of %d", opIndex, r.Index, p.NumConsts())
			}
		default:
			return dcerrors.CorruptPlan("op %d has operand kind %d", opIndex, r.Kind)
		}
		return nil
	}
	ops := p.PlanOps()
	for i, op := range ops {
		if len(op.Args) == 0 {
			return dcerrors.CorruptPlan("op %d (%s) has no operands", i, op.Name)
		}
		if err := validateParams(i, &op); err != nil {
			return err
		}
		for _, a := range op.Args {
			if err := check(a, i); err != nil {
				return err
			}
		}
	}
	return check(h.Output, len(ops))
}

// validateParams rejects parameters the kernels cannot execute.
func validateParams(i int, op *Op) error {
	prm := &op.Params
	if prm.Overflow > kernels.OverflowTrack {
		return dcerrors.CorruptPlan("op %d (%s) has overflow mode %d", i, op.Name, prm.Overflow)
	}
	switch op.Code {
	case kernels.OpTable:
		if prm.Table == nil {
			return dcerrors.CorruptPlan("op %d (%s) has no table", i, op.Name)
		}
		if !prm.Table.Valid() {
			return dcerrors.CorruptPlan("op %d (%s) has a table with invalid states", i, op.Name)
		}
	case kernels.OpGradeProject:
		if prm.Grade < 0 || prm.Grade > algebra.MaxGrade {
			return dcerrors.CorruptPlan("op %d (%s) has grade %d outside [0,%d]", i, op.Name, prm.Grade, algebra.MaxGrade)
		}
	}
	return nil
}

// InputNames lists the declared runtime parameter names.
func (h *Header) InputNames() []string {
	out := make([]string, len(h.Inputs))
	for i, in := range h.Inputs {
		out[i] = in.Name
	}
	return out
}
