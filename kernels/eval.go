package kernels

import (
	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/value"
)

// Eval applies spec to typed values with its direct semantics. It is the
// reference every executor must agree with, and what constant folding
// uses. It returns the result and the carry of a ring op.
func Eval(spec *OpSpec, p *Params, args []value.Value) (value.Value, int, error) {
	kind, err := CheckOperands(spec, kindsOf(args))
	if err != nil {
		return nil, 0, err
	}

	switch spec.Role {
	case RoleIdentity:
		return args[0], 0, nil
	case RoleLift:
		c, _ := value.AsState(args[0])
		return value.OfElement(bridge.Lift(c)), 0, nil
	case RoleProject:
		e, _ := value.AsElement(args[0])
		c, err := bridge.Project(e)
		if err != nil {
			return nil, 0, err
		}
		return value.Of(c), 0, nil
	}

	switch kind {
	case value.KindState:
		if spec.State == nil {
			return nil, 0, dcerrors.TypeMismatch(spec.Name, "op has no state implementation")
		}
		classes := make([]core.Class, len(args))
		for i, a := range args {
			classes[i], _ = value.AsState(a)
		}
		c, carry := spec.State(p, classes)
		return value.Of(c), carry, nil
	default:
		if spec.Element == nil {
			return nil, 0, dcerrors.TypeMismatch(spec.Name, "op has no element implementation")
		}
		elems := make([]*algebra.Element, len(args))
		for i, a := range args {
			elems[i], _ = value.AsElement(a)
		}
		dst := algebra.Zero()
		spec.Element(dst, p, elems)
		return value.OfElement(dst), 0, nil
	}
}

// CheckOperands validates operand kinds against spec and returns the
// common operand kind. Operands of an op taking KindAny must agree.
func CheckOperands(spec *OpSpec, kinds []value.Kind) (value.Kind, error) {
	if len(kinds) != spec.Arity {
		return 0, dcerrors.TypeMismatch(spec.Name, "op takes %d operands, got %d", spec.Arity, len(kinds))
	}
	for i, k := range kinds {
		if !spec.In.Accepts(k) {
			return 0, dcerrors.TypeMismatch(spec.Name, "operand %d is %s, op takes %s", i, k, spec.In)
		}
		if k != kinds[0] {
			return 0, dcerrors.TypeMismatch(spec.Name, "operands mix %s and %s", kinds[0], k)
		}
	}
	return kinds[0], nil
}

func kindsOf(args []value.Value) []value.Kind {
	kinds := make([]value.Kind, len(args))
	for i, a := range args {
		kinds[i] = a.Kind()
	}
	return kinds
}

// RecordCarry appends an overflow record when mode tracks and carry is
// non-zero.
func RecordCarry(dst []Overflow, mode OverflowMode, step int, op string, carry int) []Overflow {
	if mode != OverflowTrack || carry == 0 {
		return dst
	}
	return append(dst, Overflow{Step: step, Op: op, Carry: carry})
}
