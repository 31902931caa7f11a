package compiler

import (
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/ir"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// Classify returns the computation class of a normalized program.
//
//   - C0: the program is a single constant state, or an element constant
//     that is exactly a lifted state.
//   - C1: every atom is state-only and sees only states.
//   - C2: every atom fits the rank-1 subspace and at least one crosses
//     between states and elements: lift, project, a transform applied to
//     an element, or an element operand that is a lifted state.
//   - C3: anything else. Full algebra ops, ops with no state kernel, and
//     element constants that are not lifted states.
//
// The class of a sequence is the maximum over its parts.
func Classify(n ir.Node) model.Complexity {
	if c, ok := n.(*ir.Constant); ok {
		if cv := classifyValue(c.Value); cv > model.C2 {
			return cv
		}
		return model.C0
	}

	class := model.C0
	for _, leaf := range ir.Flatten(n) {
		class = max(class, classifyLeaf(leaf))
	}
	return class
}

func classifyLeaf(n ir.Node) model.Complexity {
	switch x := n.(type) {
	case *ir.Constant:
		return classifyValue(x.Value)
	case *ir.Atom:
		return classifyAtom(x)
	}
	return model.C3
}

func classifyAtom(a *ir.Atom) model.Complexity {
	spec := a.Op
	if spec.Capability == kernels.CapFull || !spec.FastCapable() {
		return model.C3
	}

	class := model.C1
	if spec.Capability == kernels.CapRank1 {
		class = model.C2
	}
	if a.OperandKind() == value.KindElement || a.ResultKind() == value.KindElement {
		class = max(class, model.C2)
	}
	for _, arg := range a.Args {
		if arg.Kind == ir.OperandConst {
			class = max(class, classifyValue(arg.Value))
		}
	}
	return class
}

// classifyValue rates a constant: states need nothing, lifted states need
// the rank-1 bridge, and any other element needs the full algebra.
func classifyValue(v value.Value) model.Complexity {
	e, ok := value.AsElement(v)
	if !ok {
		return model.C1
	}
	if _, err := bridge.Unlift(e); err != nil {
		return model.C3
	}
	return model.C2
}
