package compiler

import (
	"strconv"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/ir"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// Lower turns a normalized program into a plan for backend. h supplies the
// identity and inputs; Lower fills in the output, the static overflow,
// the constants and the ops.
//
// Identity atoms emit nothing: whatever they forward becomes the operand
// of the next op, or the plan output. A program that reduces to identity
// therefore lowers to zero ops.
func Lower(n ir.Node, backend model.Backend, h model.Header) (model.Plan, error) {
	l := &lowerer{backend: backend}
	h.StaticOverflow = nil
	h.OutputKind = ir.ResultKind(n)

	cur := model.Ref{}
	haveCur := false
	for _, leaf := range ir.Flatten(n) {
		switch x := leaf.(type) {
		case *ir.Constant:
			ref, err := l.constant(x.Value)
			if err != nil {
				return nil, err
			}
			h.StaticOverflow = append(h.StaticOverflow, x.Overflow...)
			cur, haveCur = ref, true

		case *ir.Atom:
			args := make([]model.Ref, len(x.Args))
			for i, arg := range x.Args {
				if arg.Kind == ir.OperandPrev {
					if !haveCur {
						return nil, dcerrors.Malformed("%s reads a preceding value that does not exist", x.Op.Name).
							WithContext("step", strconv.Itoa(x.Step))
					}
					args[i] = cur
					continue
				}
				ref, err := l.operand(arg)
				if err != nil {
					return nil, err
				}
				args[i] = ref
			}

			if x.Op.Role == kernels.RoleIdentity {
				cur, haveCur = args[0], true
				continue
			}
			if backend == model.BackendFast && !x.Op.FastCapable() {
				return nil, dcerrors.CapabilityViolation(backend.String(), Classify(x).String()).
					WithContext("op", x.Op.Name)
			}
			l.ops = append(l.ops, model.Op{
				Code:    x.Op.Code,
				Name:    x.Op.Name,
				Args:    args,
				Params:  x.Params,
				ArgKind: x.OperandKind(),
				Step:    x.Step,
			})
			cur, haveCur = model.Ref{Kind: model.RefPrev}, true
		}
	}
	if !haveCur {
		return nil, dcerrors.Malformed("program is empty")
	}
	h.Output = cur

	var p model.Plan
	if backend == model.BackendFast {
		p = &model.ClassPlan{Header: h, Consts: l.classes, Ops: l.ops}
	} else {
		p = &model.AlgebraPlan{Header: h, Consts: l.elems, Ops: l.ops}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

type lowerer struct {
	backend model.Backend
	classes []core.Class
	elems   []*algebra.Element
	ops     []model.Op
}

func (l *lowerer) operand(arg ir.Operand) (model.Ref, error) {
	switch arg.Kind {
	case ir.OperandInput:
		return model.Ref{Kind: model.RefInput, Name: arg.Name}, nil
	case ir.OperandConst:
		return l.constant(arg.Value)
	}
	return model.Ref{}, dcerrors.Malformed("operand kind %d cannot be lowered", arg.Kind)
}

// constant interns v in the plan's constant pool, converting it to the
// backend's value domain.
func (l *lowerer) constant(v value.Value) (model.Ref, error) {
	if l.backend == model.BackendFast {
		c, ok := value.AsState(v)
		if !ok {
			e, _ := value.AsElement(v)
			var err error
			if c, err = bridge.Unlift(e); err != nil {
				return model.Ref{}, dcerrors.CapabilityViolation(l.backend.String(), model.C3.String()).
					WithCause(err)
			}
		}
		for i, have := range l.classes {
			if have == c {
				return constRef(i), nil
			}
		}
		l.classes = append(l.classes, c)
		return constRef(len(l.classes) - 1), nil
	}

	e, ok := value.AsElement(v)
	if !ok {
		c, _ := value.AsState(v)
		e = bridge.Lift(c)
	}
	for i, have := range l.elems {
		if algebra.Equal(have, e) {
			return constRef(i), nil
		}
	}
	l.elems = append(l.elems, e.Clone())
	return constRef(len(l.elems) - 1), nil
}

func constRef(i int) model.Ref {
	return model.Ref{Kind: model.RefConst, Index: i}
}
