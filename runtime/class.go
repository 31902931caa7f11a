package runtime

import (
	"strconv"

	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// classExec runs a ClassPlan. Every value is a canonical state; element
// inputs are unlifted on entry and an element output is lifted on exit.
// Lift and project ops are relabelings here and cost nothing.
type classExec struct {
	plan  *model.ClassPlan
	specs []*kernels.OpSpec
	res   *Result
}

func (x *classExec) run(inputs map[string]value.Value) error {
	h := &x.plan.Header

	bound := make(map[string]core.Class, len(h.Inputs))
	for _, in := range h.Inputs {
		v := inputs[in.Name]
		if c, ok := value.AsState(v); ok {
			bound[in.Name] = c
			continue
		}
		e, _ := value.AsElement(v)
		c, err := bridge.Unlift(e)
		if err != nil {
			return wrapInput(err, in.Name)
		}
		x.res.Stats.Bridges++
		bound[in.Name] = c
	}

	var cur core.Class
	resolve := func(r model.Ref) core.Class {
		switch r.Kind {
		case model.RefInput:
			return bound[r.Name]
		case model.RefConst:
			return x.plan.Consts[r.Index]
		}
		return cur
	}

	var argBuf [4]core.Class
	for i := range x.plan.Ops {
		op := &x.plan.Ops[i]
		spec := x.specs[i]

		args := argBuf[:0]
		for _, r := range op.Args {
			args = append(args, resolve(r))
		}

		switch spec.Role {
		case kernels.RoleIdentity, kernels.RoleLift, kernels.RoleProject:
			cur = args[0]
		default:
			if spec.State == nil {
				return dcerrors.CapabilityViolation(model.BackendFast.String(), h.Class.String()).
					WithContext("op", spec.Name)
			}
			c, carry := spec.State(&op.Params, args)
			x.res.Overflow = kernels.RecordCarry(x.res.Overflow, op.Params.Overflow, op.Step, op.Name, carry)
			if op.Code == kernels.OpTable {
				x.res.Stats.TableLookups++
			}
			cur = c
		}
		x.res.Stats.Ops++
	}

	out := resolve(h.Output)
	if h.OutputKind == value.KindElement {
		x.res.Stats.Bridges++
		x.res.Value = value.OfElement(bridge.Lift(out))
		return nil
	}
	x.res.Value = value.Of(out)
	return nil
}

// wrapInput attaches the input name to a bridging failure.
func wrapInput(err error, name string) error {
	if e, ok := dcerrors.As(err); ok {
		return e.WithContext("input", name)
	}
	return err
}

// wrapOp attaches the failing op to an execution error.
func wrapOp(err error, op *model.Op) error {
	if e, ok := dcerrors.As(err); ok {
		return e.WithContext("op", op.Name).WithContext("step", strconv.Itoa(op.Step))
	}
	return err
}
