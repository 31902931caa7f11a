package ir

import (
	"sort"

	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/value"
)

// Eval interprets n with the direct semantics of every op. Every input
// operand must be bound with a value of its declared kind before anything
// runs. Overflow records are returned in step order.
func Eval(n Node, inputs map[string]value.Value) (value.Value, []kernels.Overflow, error) {
	for _, a := range Atoms(n) {
		for _, arg := range a.Args {
			if arg.Kind != OperandInput {
				continue
			}
			v, ok := inputs[arg.Name]
			if !ok {
				return nil, nil, dcerrors.MissingBinding(arg.Name)
			}
			if v.Kind() != arg.Type {
				return nil, nil, dcerrors.TypeMismatch(a.Op.Name, "input %q is %s, declared %s", arg.Name, v.Kind(), arg.Type)
			}
		}
	}

	ev := &evaluator{inputs: inputs}
	if err := ev.eval(n); err != nil {
		return nil, nil, err
	}
	sort.SliceStable(ev.overflow, func(i, j int) bool {
		return ev.overflow[i].Step < ev.overflow[j].Step
	})
	return ev.prev, ev.overflow, nil
}

type evaluator struct {
	inputs   map[string]value.Value
	prev     value.Value
	overflow []kernels.Overflow
}

func (ev *evaluator) eval(n Node) error {
	switch x := n.(type) {
	case *Constant:
		ev.prev = x.Value
		ev.overflow = append(ev.overflow, x.Overflow...)
	case *Sequence:
		for _, c := range x.Nodes {
			if err := ev.eval(c); err != nil {
				return err
			}
		}
	case *Atom:
		args := make([]value.Value, len(x.Args))
		for i, arg := range x.Args {
			switch arg.Kind {
			case OperandConst:
				args[i] = arg.Value
			case OperandInput:
				args[i] = ev.inputs[arg.Name]
			case OperandPrev:
				if ev.prev == nil {
					return dcerrors.Malformed("%s reads a preceding value that does not exist", x.Op.Name)
				}
				args[i] = ev.prev
			}
		}
		v, carry, err := kernels.Eval(x.Op, &x.Params, args)
		if err != nil {
			return err
		}
		ev.overflow = kernels.RecordCarry(ev.overflow, x.Params.Overflow, x.Step, x.Op.Name, carry)
		ev.prev = v
	}
	return nil
}
