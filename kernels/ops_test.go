package kernels

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/value"
)

func states(idx ...int) []value.Value {
	out := make([]value.Value, len(idx))
	for i, n := range idx {
		out[i] = value.Of(core.MustClass(n))
	}
	return out
}

func TestRingOps(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	tests := []struct {
		op        string
		a, b      int
		want      int
		wantCarry int
	}{
		{NameAdd, 5, 7, 12, 0},
		{NameAdd, 90, 10, 4, 1},
		{NameSub, 7, 5, 2, 0},
		{NameSub, 5, 7, 94, -1},
		{NameMul, 10, 10, 4, 1},
		{NameMul, 95, 95, 1, 94},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, carry, err := Eval(reg.MustLookup(tt.op), &Params{}, states(tt.a, tt.b))
			require.NoError(t, err)
			assert.Equal(t, value.Of(core.MustClass(tt.want)), got)
			assert.Equal(t, tt.wantCarry, carry)
		})
	}
}

func TestRecordCarry(t *testing.T) {
	t.Parallel()
	var log []Overflow
	log = RecordCarry(log, OverflowDrop, 0, NameAdd, 1)
	assert.Empty(t, log)
	log = RecordCarry(log, OverflowTrack, 1, NameAdd, 0)
	assert.Empty(t, log)
	log = RecordCarry(log, OverflowTrack, 2, NameSub, -1)
	assert.Equal(t, []Overflow{{Step: 2, Op: NameSub, Carry: -1}}, log)
}

func TestTransformsAgreeAcrossKinds(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, g := range core.Generators {
		spec := reg.MustLookup(g.String())
		require.True(t, spec.Transform)
		for i := 0; i < core.NumClasses; i++ {
			c := core.Class(i)
			p := &Params{Power: 3}
			sv, _, err := Eval(spec, p, []value.Value{value.Of(c)})
			require.NoError(t, err)
			ev, _, err := Eval(spec, p, []value.Value{value.OfElement(bridge.Lift(c))})
			require.NoError(t, err)

			s, _ := value.AsState(sv)
			e, _ := value.AsElement(ev)
			assert.True(t, algebra.Equal(bridge.Lift(s), e))
		}
	}
}

func TestEvalBridgeOps(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	c := core.MustClass(21)

	lifted, _, err := Eval(reg.MustLookup(NameLift), &Params{}, []value.Value{value.Of(c)})
	require.NoError(t, err)
	back, _, err := Eval(reg.MustLookup(NameProject), &Params{}, []value.Value{lifted})
	require.NoError(t, err)
	assert.Equal(t, value.Of(c), back)

	e12 := algebra.Multiply(algebra.MustBasis(algebra.Vector(1), 0, 0), algebra.MustBasis(algebra.Vector(2), 0, 0))
	_, _, err = Eval(reg.MustLookup(NameProject), &Params{}, []value.Value{value.OfElement(e12)})
	assert.ErrorIs(t, err, dcerrors.ErrNotRank1)
}

func TestEvalTypeMismatch(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	_, _, err := Eval(reg.MustLookup(NameAdd), &Params{}, []value.Value{
		value.Of(core.MustClass(1)),
		value.OfElement(algebra.MustBasis(algebra.Scalar, 0, 0)),
	})
	assert.ErrorIs(t, err, dcerrors.ErrTypeMismatch)

	_, _, err = Eval(reg.MustLookup(NameMultiply), &Params{}, states(1, 2))
	assert.ErrorIs(t, err, dcerrors.ErrTypeMismatch)

	_, _, err = Eval(reg.MustLookup(NameScale), &Params{}, states(1, 2))
	assert.ErrorIs(t, err, dcerrors.ErrTypeMismatch)
}

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, name := range []string{
		NameIdentity, NameAdd, NameSub, NameMul, "R", "D", "T", "M", NameTable,
		NameLift, NameProject, NameMultiply, NameAlgebraAdd, NameScale, NameGradeProject,
	} {
		spec, ok := reg.Lookup(name)
		require.True(t, ok, name)
		byCode, ok := reg.ByCode(spec.Code)
		require.True(t, ok)
		assert.Same(t, spec, byCode)
	}
	assert.Equal(t, NameProject, reg.MustLookup(NameLift).Inverse)
	assert.False(t, reg.MustLookup(NameMultiply).FastCapable())
	assert.True(t, reg.MustLookup(NameProject).FastCapable())
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	double := OpSpec{
		Name: "double", Arity: 1,
		In: value.KindState, Out: value.KindState,
		State: func(_ *Params, args []core.Class) (core.Class, int) {
			return core.Class((2 * int(args[0])) % core.NumClasses), 0
		},
	}
	spec, err := reg.Register(double)
	require.NoError(t, err)
	assert.Equal(t, uint8(OpCustomBase), spec.Code)

	got, _, err := Eval(spec, &Params{}, states(50))
	require.NoError(t, err)
	assert.Equal(t, value.Of(core.MustClass(4)), got)

	_, err = reg.Register(double)
	assert.ErrorIs(t, err, dcerrors.ErrDuplicateOp)

	_, err = reg.Register(OpSpec{Name: "empty", Arity: 1})
	assert.ErrorIs(t, err, dcerrors.ErrMalformedDescriptor)

	_, ok := Default().Lookup("double")
	assert.False(t, ok, "extensions must not leak into the default registry")
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Register(OpSpec{
				Name: "ext" + string(rune('a'+i)), Arity: 1,
				In: value.KindState, Out: value.KindState,
				State: identityState,
			})
			assert.NoError(t, err)
			_, ok := reg.Lookup(NameAdd)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Len(t, reg.Names(), len(Builtins())+8)
}
