package kernels

import (
	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	"github.com/sbl8/dualc/value"
)

// Builtins returns the builtin catalog in opcode order.
func Builtins() []OpSpec {
	specs := []OpSpec{
		{
			Name: NameIdentity, Code: OpIdentity, Arity: 1,
			In: value.KindAny, Out: value.KindAny,
			Capability: CapStateOnly, Role: RoleIdentity,
			State:   identityState,
			Element: identityElement,
		},
		{
			Name: NameAdd, Code: OpAdd, Arity: 2,
			In: value.KindState, Out: value.KindState,
			Capability: CapStateOnly, Commutative: true, Ring: true,
			State: ringAdd,
		},
		{
			Name: NameSub, Code: OpSub, Arity: 2,
			In: value.KindState, Out: value.KindState,
			Capability: CapStateOnly, Ring: true,
			State: ringSub,
		},
		{
			Name: NameMul, Code: OpMul, Arity: 2,
			In: value.KindState, Out: value.KindState,
			Capability: CapStateOnly, Commutative: true, Ring: true,
			State: ringMul,
		},
	}
	for i, g := range core.Generators {
		specs = append(specs, transformSpec(g, uint8(OpR+i)))
	}
	specs = append(specs,
		OpSpec{
			Name: NameTable, Code: OpTable, Arity: 1,
			In: value.KindState, Out: value.KindState,
			Capability: CapStateOnly,
			State:      tableLookup,
		},
		OpSpec{
			Name: NameLift, Code: OpLift, Arity: 1,
			In: value.KindState, Out: value.KindElement,
			Capability: CapRank1, Role: RoleLift,
			Inverse: NameProject,
		},
		OpSpec{
			Name: NameProject, Code: OpProject, Arity: 1,
			In: value.KindElement, Out: value.KindState,
			Capability: CapRank1, Role: RoleProject,
		},
		OpSpec{
			Name: NameMultiply, Code: OpMultiply, Arity: 2,
			In: value.KindElement, Out: value.KindElement,
			Capability: CapFull,
			Element:    elementMultiply,
		},
		OpSpec{
			Name: NameAlgebraAdd, Code: OpAlgebraAdd, Arity: 2,
			In: value.KindElement, Out: value.KindElement,
			Capability: CapFull, Commutative: true,
			Element: elementAdd,
		},
		OpSpec{
			Name: NameScale, Code: OpScale, Arity: 1,
			In: value.KindElement, Out: value.KindElement,
			Capability: CapFull,
			Element:    elementScale,
		},
		OpSpec{
			Name: NameGradeProject, Code: OpGradeProject, Arity: 1,
			In: value.KindElement, Out: value.KindElement,
			Capability: CapFull,
			Element:    elementGradeProject,
		},
	)
	return specs
}

func transformSpec(g core.Generator, code uint8) OpSpec {
	return OpSpec{
		Name: g.String(), Code: code, Arity: 1,
		In: value.KindAny, Out: value.KindAny,
		Capability: CapStateOnly,
		Transform:  true, Generator: g,
		State: func(p *Params, args []core.Class) (core.Class, int) {
			return core.Apply(args[0], g, p.Power), 0
		},
		Element: func(dst *algebra.Element, p *Params, args []*algebra.Element) {
			bridge.ApplyAlgebraInto(dst, g, p.Power, args[0])
		},
	}
}

// -------- State kernels ----------

func identityState(_ *Params, args []core.Class) (core.Class, int) {
	return args[0], 0
}

func ringAdd(_ *Params, args []core.Class) (core.Class, int) {
	sum := int(args[0]) + int(args[1])
	return core.Class(sum % core.NumClasses), sum / core.NumClasses
}

func ringSub(_ *Params, args []core.Class) (core.Class, int) {
	a, b := int(args[0]), int(args[1])
	if a < b {
		return core.Class(a - b + core.NumClasses), -1
	}
	return core.Class(a - b), 0
}

func ringMul(_ *Params, args []core.Class) (core.Class, int) {
	prod := int(args[0]) * int(args[1])
	return core.Class(prod % core.NumClasses), prod / core.NumClasses
}

func tableLookup(p *Params, args []core.Class) (core.Class, int) {
	return p.Table[args[0]], 0
}

// -------- Element kernels ----------

func identityElement(dst *algebra.Element, _ *Params, args []*algebra.Element) {
	dst.CopyFrom(args[0])
}

func elementMultiply(dst *algebra.Element, _ *Params, args []*algebra.Element) {
	algebra.MultiplyInto(dst, args[0], args[1])
}

func elementAdd(dst *algebra.Element, _ *Params, args []*algebra.Element) {
	algebra.AddInto(dst, args[0], args[1])
}

func elementScale(dst *algebra.Element, p *Params, args []*algebra.Element) {
	algebra.ScaleInto(dst, args[0], p.Scalar)
}

func elementGradeProject(dst *algebra.Element, p *Params, args []*algebra.Element) {
	algebra.GradeProjectInto(dst, args[0], p.Grade)
}
