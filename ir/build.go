package ir

import (
	"strconv"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// Build translates a descriptor into an IR program: one Atom per declared
// op, in declaration order, with groups as nested Sequences. The result is
// always a Sequence. A nil registry means kernels.Default().
func Build(desc *model.Descriptor, reg *kernels.Registry) (Node, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = kernels.Default()
	}
	runtime, err := RuntimeKinds(desc)
	if err != nil {
		return nil, err
	}
	b := &builder{
		reg:      reg,
		compiled: make(map[string]value.Value, len(desc.Compiled)),
		runtime:  runtime,
	}
	for name, p := range desc.Compiled {
		v, err := ParamValue(name, p)
		if err != nil {
			return nil, err
		}
		b.compiled[name] = v
	}
	seq, err := b.sequence(desc.Ops)
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// RuntimeKinds returns the declared kind of every runtime parameter.
func RuntimeKinds(desc *model.Descriptor) (map[string]value.Kind, error) {
	out := make(map[string]value.Kind, len(desc.Runtime))
	for name, k := range desc.Runtime {
		kind, err := value.ParseKind(k)
		if err != nil {
			return nil, dcerrors.Malformed("runtime parameter %q: %v", name, err)
		}
		out[name] = kind
	}
	return out, nil
}

type builder struct {
	reg      *kernels.Registry
	compiled map[string]value.Value
	runtime  map[string]value.Kind

	step int
	// prev is the result kind of the last node built; nil before the first.
	prev *value.Kind
}

// ParamValue converts a parameter literal to a value. name only labels
// errors.
func ParamValue(name string, p model.Param) (value.Value, error) {
	if p.State != nil {
		c, err := core.NewClass(*p.State)
		if err != nil {
			return nil, dcerrors.InvalidState("parameter %q: state %d out of range [0,%d)", name, *p.State, core.NumClasses)
		}
		return value.Of(c), nil
	}
	terms := make([]algebra.Term, 0, len(p.Element.Terms))
	for _, t := range p.Element.Terms {
		blade, err := algebra.BladeOf(t.Blade...)
		if err != nil {
			return nil, dcerrors.Malformed("parameter %q: %v", name, err)
		}
		terms = append(terms, algebra.Term{Blade: blade, R: t.R, S: t.S, Coeff: t.Coeff})
	}
	e, err := algebra.NewElement(terms)
	if err != nil {
		return nil, dcerrors.Malformed("parameter %q: %v", name, err)
	}
	return value.OfElement(e), nil
}

func (b *builder) sequence(decls []model.OpDecl) (*Sequence, error) {
	if len(decls) == 0 {
		return nil, dcerrors.Malformed("empty op list")
	}
	seq := &Sequence{Nodes: make([]Node, 0, len(decls))}
	for i := range decls {
		d := &decls[i]
		if len(d.Group) > 0 {
			inner, err := b.sequence(d.Group)
			if err != nil {
				return nil, err
			}
			seq.Nodes = append(seq.Nodes, inner)
			continue
		}
		a, err := b.atom(d)
		if err != nil {
			return nil, err
		}
		seq.Nodes = append(seq.Nodes, a)
	}
	return seq, nil
}

func (b *builder) atom(d *model.OpDecl) (*Atom, error) {
	step := b.step
	b.step++

	if d.Op == kernels.NameTable {
		return nil, dcerrors.Malformed("op %d: %q is internal and cannot be declared", step, d.Op)
	}
	spec, ok := b.reg.Lookup(d.Op)
	if !ok {
		return nil, dcerrors.UnknownOp(d.Op).WithContext("step", strconv.Itoa(step))
	}

	names := d.Args
	if len(names) == 0 && spec.Unary() {
		names = []string{model.PrevRef}
	}
	args := make([]Operand, len(names))
	kinds := make([]value.Kind, len(names))
	for i, name := range names {
		o, err := b.operand(step, name)
		if err != nil {
			return nil, err
		}
		args[i] = o
		kinds[i] = o.Type
	}
	if _, err := kernels.CheckOperands(spec, kinds); err != nil {
		return nil, err
	}

	params, err := buildParams(step, spec, d)
	if err != nil {
		return nil, err
	}
	a := &Atom{Op: spec, Args: args, Params: params, Step: step}
	k := a.ResultKind()
	b.prev = &k
	return a, nil
}

func (b *builder) operand(step int, name string) (Operand, error) {
	if name == model.PrevRef {
		if b.prev == nil {
			return Operand{}, dcerrors.Malformed("op %d reads %s but nothing precedes it", step, model.PrevRef)
		}
		return Prev(*b.prev), nil
	}
	if v, ok := b.compiled[name]; ok {
		return Const(v), nil
	}
	if k, ok := b.runtime[name]; ok {
		return Input(name, k), nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		c, err := core.NewClass(n)
		if err != nil {
			return Operand{}, dcerrors.InvalidState("op %d: literal state %d out of range [0,%d)", step, n, core.NumClasses)
		}
		return Const(value.Of(c)), nil
	}
	return Operand{}, dcerrors.Malformed("op %d reads unbound name %q", step, name)
}

func buildParams(step int, spec *kernels.OpSpec, d *model.OpDecl) (kernels.Params, error) {
	var p kernels.Params

	switch {
	case spec.Transform:
		p.Power = 1
		if d.Power != nil {
			p.Power = *d.Power
		}
	case d.Power != nil:
		return p, dcerrors.Malformed("op %d: %s takes no power", step, spec.Name)
	}

	switch {
	case spec.Name == kernels.NameGradeProject:
		if d.Grade == nil {
			return p, dcerrors.Malformed("op %d: %s needs a grade", step, spec.Name)
		}
		p.Grade = *d.Grade
	case d.Grade != nil:
		return p, dcerrors.Malformed("op %d: %s takes no grade", step, spec.Name)
	}

	switch {
	case spec.Name == kernels.NameScale:
		if d.Scalar == nil {
			return p, dcerrors.Malformed("op %d: %s needs a scalar", step, spec.Name)
		}
		p.Scalar = *d.Scalar
	case d.Scalar != nil:
		return p, dcerrors.Malformed("op %d: %s takes no scalar", step, spec.Name)
	}

	switch {
	case spec.Ring:
		mode, err := kernels.ParseOverflowMode(d.Overflow)
		if err != nil {
			return p, dcerrors.Malformed("op %d: %v", step, err)
		}
		p.Overflow = mode
	case d.Overflow != "":
		return p, dcerrors.Malformed("op %d: %s has no overflow mode", step, spec.Name)
	}
	return p, nil
}
