package ir

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

func build(t *testing.T, src string) Node {
	t.Helper()
	d, err := model.ParseDescriptorText([]byte("name t\n" + src))
	require.NoError(t, err)
	n, err := Build(d, nil)
	require.NoError(t, err)
	return n
}

func normalize(t *testing.T, src string, specialize bool) Node {
	t.Helper()
	return Normalize(build(t, src), Options{Specialize: specialize})
}

func TestBuild(t *testing.T) {
	t.Parallel()
	n := build(t, `
compiled a 21
runtime x state
op add a x overflow=track
group {
    op R
    op T $ power=3
}
op lift $
`)
	seq, ok := n.(*Sequence)
	require.True(t, ok)
	require.Len(t, seq.Nodes, 3)

	add := seq.Nodes[0].(*Atom)
	assert.Equal(t, kernels.NameAdd, add.Op.Name)
	assert.Equal(t, kernels.OverflowTrack, add.Params.Overflow)
	assert.Equal(t, Const(value.Of(core.MustClass(21))), add.Args[0])
	assert.Equal(t, Input("x", value.KindState), add.Args[1])

	group := seq.Nodes[1].(*Sequence)
	r := group.Nodes[0].(*Atom)
	assert.Equal(t, 1, r.Params.Power, "power defaults to 1")
	assert.Equal(t, OperandPrev, r.Args[0].Kind, "unary ops default to $")
	assert.Equal(t, 2, group.Nodes[1].(*Atom).Step)

	lift := seq.Nodes[2].(*Atom)
	assert.Equal(t, 3, lift.Step)
	assert.Equal(t, value.KindElement, ResultKind(n))
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"leading prev", "op R $", dcerrors.ErrMalformedDescriptor},
		{"unknown op", "op frob 1", dcerrors.ErrUnknownOp},
		{"unbound name", "op R y", dcerrors.ErrMalformedDescriptor},
		{"internal table", "op table 1", dcerrors.ErrMalformedDescriptor},
		{"literal out of range", "op R 96", dcerrors.ErrInvalidState},
		{"compiled out of range", "compiled a 200\nop R a", dcerrors.ErrInvalidState},
		{"multiply on states", "op multiply 1 2", dcerrors.ErrTypeMismatch},
		{"element into ring op", "runtime u element\nop add u 1", dcerrors.ErrTypeMismatch},
		{"project on a state", "op project 4", dcerrors.ErrTypeMismatch},
		{"arity", "op add 1", dcerrors.ErrTypeMismatch},
		{"power on ring op", "op add 1 2 power=2", dcerrors.ErrMalformedDescriptor},
		{"missing grade", "runtime u element\nop gradeProject u", dcerrors.ErrMalformedDescriptor},
		{"missing scalar", "runtime u element\nop scale u", dcerrors.ErrMalformedDescriptor},
		{"overflow on transform", "op R 1 overflow=track", dcerrors.ErrMalformedDescriptor},
		{"bad element blade", "compiled u element 3,1:0:0:1\nop T u", dcerrors.ErrMalformedDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := model.ParseDescriptorText([]byte("name t\n" + tt.src))
			require.NoError(t, err)
			_, err = Build(d, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildCustomOp(t *testing.T) {
	t.Parallel()
	reg := kernels.NewRegistry()
	_, err := reg.Register(kernels.OpSpec{
		Name: "double", Arity: 1,
		In: value.KindState, Out: value.KindState,
		State: func(_ *kernels.Params, args []core.Class) (core.Class, int) {
			return core.Class((2 * int(args[0])) % core.NumClasses), 0
		},
	})
	require.NoError(t, err)

	d, err := model.ParseDescriptorText([]byte("name t\nruntime x state\nop double x\n"))
	require.NoError(t, err)
	n, err := Build(d, reg)
	require.NoError(t, err)

	v, _, err := Eval(n, map[string]value.Value{"x": value.Of(core.MustClass(50))})
	require.NoError(t, err)
	assert.Equal(t, value.Of(core.MustClass(4)), v)

	_, err = Build(d, nil)
	assert.ErrorIs(t, err, dcerrors.ErrUnknownOp)
}

func TestNormalizeForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		src        string
		specialize bool
		want       string
	}{
		{"rotate constant", "compiled a 21\nop R a", false, "const(#45)"},
		{"fold ring", "compiled a 5\ncompiled b 7\nop add a b", false, "const(#12)"},
		{"full turn", "runtime x state\nop R x power=4", false, "identity(in:x)"},
		{"negative power", "runtime x state\nop T x power=-1", false, "T^7(in:x)"},
		{"element turn", "runtime u element\nop T u power=8", false, "identity(in:u)"},
		{"merge", "runtime x state\nop R x\nop R $ power=2", false, "R^3(in:x)"},
		{"merge to identity", "runtime x state\nop D x\nop D $ power=2\nop T $", false, "T^1(in:x)"},
		{"order", "runtime x state\nop T x\nop D $\nop R $", false, "seq(R^1(in:x); D^1($); T^1($))"},
		{"mirror moves right", "runtime x state\nop T x\nop M $\nop R $", false, "seq(R^3(in:x); T^1($); M^1($))"},
		{"mirror conjugates", "runtime x state\nop M x\nop R $", false, "seq(R^3(in:x); M^1($))"},
		{"mirror cancels", "runtime x state\nop M x\nop D $\nop M $", false, "D^2(in:x)"},
		{"lift then project", "runtime x state\nop lift x\nop project $", false, "identity(in:x)"},
		{"inverse then more", "runtime x state\nop lift x\nop project $\nop R $", false, "R^1(in:x)"},
		{"commutative order", "runtime x state\nop add 5 x", false, "add(in:x, #5)"},
		{"trailing identity", "runtime x state\nop R x\nop identity $", false, "R^1(in:x)"},
		{"group flattening", "runtime x state\nop R x\ngroup {\n op R $\n}\nop R $", false, "R^3(in:x)"},
		{"dead constant", "runtime x state\nop add 1 2\nop R x", false, "R^1(in:x)"},
		{"table back to generator", "runtime x state\nop add x 0\nop R $", true, "R^1(in:x)"},
		{"table to identity", "runtime x state\nop add x 1\nop sub $ 1", true, "identity(in:x)"},
		{
			"overflow survives",
			"compiled a 90\ncompiled b 10\nruntime x state\nop add a b overflow=track\nop R x",
			false, "seq(const(#4)!add@0+1; R^1(in:x))",
		},
		{
			"overflow merges",
			"compiled a 90\ncompiled b 10\nop add a b overflow=track\nop add $ a overflow=track",
			false, "const(#94)!add@0+1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(normalize(t, tt.src, tt.specialize)))
		})
	}
}

func TestNormalizeSpecializesIntoTable(t *testing.T) {
	t.Parallel()
	n := normalize(t, "runtime x state\nop R x\nop add $ 5\nop D $", true)
	a, ok := n.(*Atom)
	require.True(t, ok, Format(n))
	assert.Equal(t, kernels.NameTable, a.Op.Name)
	assert.Equal(t, Input("x", value.KindState), a.Args[0])

	for i := 0; i < core.NumClasses; i++ {
		x := core.Class(i)
		want := core.Apply(core.Class((int(core.Apply(x, core.R, 1))+5)%core.NumClasses), core.D, 1)
		assert.Equal(t, want, a.Params.Table.Apply(x))
	}
}

func TestNormalizeTrackedRingIsNotSpecialized(t *testing.T) {
	t.Parallel()
	n := normalize(t, "runtime x state\nop R x\nop add $ 50 overflow=track", true)
	seq, ok := n.(*Sequence)
	require.True(t, ok, Format(n))
	assert.Len(t, seq.Nodes, 2)
}

func TestNormalizeLeavesNonRank1Projection(t *testing.T) {
	t.Parallel()
	n := normalize(t, "compiled u element 1:0:0:1\ncompiled v element 2:0:0:1\nop multiply u v\nop project $", false)
	a, ok := n.(*Atom)
	require.True(t, ok, Format(n))
	assert.Equal(t, kernels.NameProject, a.Op.Name)
	assert.Equal(t, OperandConst, a.Args[0].Kind)

	_, _, err := Eval(n, nil)
	assert.ErrorIs(t, err, dcerrors.ErrNotRank1)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	n := build(t, "compiled a 3\nruntime x state\nop R x\nop R $\nop add a 4\nop lift $\nop project $")
	before := Format(n)
	_ = Normalize(n, Options{Specialize: true})
	assert.Equal(t, before, Format(n))
}

var equivalencePrograms = []string{
	"runtime x state\nop R x\nop D $\nop T $ power=3\nop M $\nop R $ power=-1",
	"runtime x state\nop add x 17 overflow=track\nop mul $ 5 overflow=track\nop sub $ x overflow=track",
	"runtime x state\nop T x\nop R $\nop lift $\nop D $\nop project $",
	"runtime x state\nop M x\nop M $\nop add $ 3\nop T $ power=8",
	"runtime x state\nop R x\ngroup {\n op D $\n op identity $\n}\nop R $ power=3",
	"compiled a 60\nruntime x state\nop add a 50 overflow=track\nop mul $ x overflow=track\nop T $",
	"runtime x state\nop sub 3 x overflow=track\nop lift $\nop M $\nop T $ power=2\nop project $",
	"runtime x state\nop lift x\nop R $\nop project $\nop add $ 1\nop D $\nop T $",
}

func TestNormalizePreservesSemantics(t *testing.T) {
	t.Parallel()
	for _, src := range equivalencePrograms {
		for _, specialize := range []bool{false, true} {
			raw := build(t, src)
			norm := Normalize(raw, Options{Specialize: specialize})
			for i := 0; i < core.NumClasses; i++ {
				in := map[string]value.Value{"x": value.Of(core.Class(i))}
				want, wantOverflow, err := Eval(raw, in)
				require.NoError(t, err)
				got, gotOverflow, err := Eval(norm, in)
				require.NoError(t, err)
				require.True(t, value.Equal(want, got), "%s with x=%d: %v vs %v", src, i, want, got)
				require.Equal(t, wantOverflow, gotOverflow, "%s with x=%d", src, i)
			}
		}
	}
}

type genPower struct {
	g core.Generator
	p int
}

// transformChains lists every chain of nonzero generator powers up to
// length n.
func transformChains(n int) [][]genPower {
	var atoms []genPower
	for _, g := range core.Generators {
		for p := 1; p < g.Order(); p++ {
			atoms = append(atoms, genPower{g, p})
		}
	}
	chains := [][]genPower{nil}
	var out [][]genPower
	for length := 1; length <= n; length++ {
		var next [][]genPower
		for _, c := range chains {
			for _, a := range atoms {
				next = append(next, append(append([]genPower(nil), c...), a))
			}
		}
		out = append(out, next...)
		chains = next
	}
	return out
}

func TestNormalizeTransformChainsShareForm(t *testing.T) {
	t.Parallel()
	type seen struct {
		src  string
		form Node
	}
	forms := make(map[core.Table]seen)
	for _, chain := range transformChains(3) {
		var src strings.Builder
		src.WriteString("runtime x state\n")
		table := core.IdentityTable()
		for i, a := range chain {
			arg := "$"
			if i == 0 {
				arg = "x"
			}
			fmt.Fprintf(&src, "op %s %s power=%d\n", a.g, arg, a.p)
			table = table.Then(core.GeneratorTable(a.g, a.p))
		}
		form := normalize(t, src.String(), false)
		if prev, ok := forms[table]; ok {
			require.True(t, Equal(prev.form, form), "%q -> %s\n%q -> %s",
				prev.src, Format(prev.form), src.String(), Format(form))
			continue
		}
		forms[table] = seen{src.String(), form}
	}
	assert.Equal(t, "identity(in:x)", Format(forms[core.IdentityTable()].form))
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	for _, src := range equivalencePrograms {
		for _, specialize := range []bool{false, true} {
			opts := Options{Specialize: specialize}
			once := Normalize(build(t, src), opts)
			twice := Normalize(once, opts)
			assert.True(t, Equal(once, twice), "%s: %s vs %s", src, Format(once), Format(twice))
		}
	}
}

func TestEvalBindings(t *testing.T) {
	t.Parallel()
	n := build(t, "runtime x state\nruntime y state\nop add x y")

	_, _, err := Eval(n, map[string]value.Value{"x": value.Of(1)})
	assert.ErrorIs(t, err, dcerrors.ErrMissingBinding)

	_, _, err = Eval(n, map[string]value.Value{
		"x": value.Of(1),
		"y": value.OfElement(nil),
	})
	assert.ErrorIs(t, err, dcerrors.ErrTypeMismatch)

	v, overflow, err := Eval(n, map[string]value.Value{"x": value.Of(90), "y": value.Of(10)})
	require.NoError(t, err)
	assert.Equal(t, value.Of(4), v)
	assert.Empty(t, overflow, "drop mode reports nothing")
}
