package runtime

import (
	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// algebraExec runs an AlgebraPlan over elements. State inputs are lifted
// on entry. Ops with an element kernel run directly; state-only ops are
// bridged: operands projected, the state kernel applied, the result
// lifted. A state output is projected on exit.
type algebraExec struct {
	plan  *model.AlgebraPlan
	specs []*kernels.OpSpec
	acc   *accumulator
	res   *Result
}

func (x *algebraExec) run(inputs map[string]value.Value) error {
	h := &x.plan.Header

	bound := make(map[string]*algebra.Element, len(h.Inputs))
	for _, in := range h.Inputs {
		v := inputs[in.Name]
		if e, ok := value.AsElement(v); ok {
			bound[in.Name] = e
			continue
		}
		c, _ := value.AsState(v)
		bound[in.Name] = bridge.Lift(c)
		x.res.Stats.Bridges++
	}

	resolve := func(r model.Ref) *algebra.Element {
		switch r.Kind {
		case model.RefInput:
			return bound[r.Name]
		case model.RefConst:
			return x.plan.Consts[r.Index]
		}
		return x.acc.prev
	}

	var argBuf [4]*algebra.Element
	var stateBuf [4]core.Class
	for i := range x.plan.Ops {
		op := &x.plan.Ops[i]
		spec := x.specs[i]

		args := argBuf[:0]
		for _, r := range op.Args {
			args = append(args, resolve(r))
		}
		dst := x.acc.prop

		switch {
		case spec.Role == kernels.RoleIdentity || spec.Role == kernels.RoleLift:
			dst.CopyFrom(args[0])

		case spec.Role == kernels.RoleProject:
			c, err := bridge.Project(args[0])
			if err != nil {
				return wrapOp(err, op)
			}
			bridge.LiftInto(dst, c)
			x.res.Stats.Bridges++

		case spec.Element != nil && spec.In != value.KindState:
			spec.Element(dst, &op.Params, args)

		case spec.State != nil:
			states := stateBuf[:0]
			for _, a := range args {
				c, err := bridge.Project(a)
				if err != nil {
					return wrapOp(err, op)
				}
				states = append(states, c)
			}
			c, carry := spec.State(&op.Params, states)
			x.res.Overflow = kernels.RecordCarry(x.res.Overflow, op.Params.Overflow, op.Step, op.Name, carry)
			if op.Code == kernels.OpTable {
				x.res.Stats.TableLookups++
			}
			bridge.LiftInto(dst, c)
			x.res.Stats.Bridges++

		default:
			return wrapOp(dcerrors.TypeMismatch(spec.Name, "op has no kernel for the general backend"), op)
		}

		x.acc.swap()
		x.res.Stats.Ops++
	}

	out := resolve(h.Output)
	if h.OutputKind == value.KindState {
		c, err := bridge.Project(out)
		if err != nil {
			return err
		}
		x.res.Stats.Bridges++
		x.res.Value = value.Of(c)
		return nil
	}
	// The accumulator goes back to the arena; the result must not alias it.
	x.res.Value = value.OfElement(out.Clone())
	return nil
}
