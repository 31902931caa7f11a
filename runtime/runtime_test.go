package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/compiler"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/ir"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/logging"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

func descriptor(t testing.TB, src string) *model.Descriptor {
	t.Helper()
	d, err := model.ParseDescriptorText([]byte("name t\n" + src))
	require.NoError(t, err)
	return d
}

func newCompiler() *compiler.Compiler {
	return compiler.New(compiler.Options{Logger: logging.Nop(), CacheSize: -1})
}

func newEngine() *Engine {
	opts := DefaultEngineOptions()
	opts.Logger = logging.Nop()
	return NewEngine(opts)
}

func compileFor(t testing.TB, d *model.Descriptor, b model.Backend) model.Plan {
	t.Helper()
	p, err := newCompiler().CompileFor(context.Background(), d, b)
	require.NoError(t, err)
	require.Equal(t, b, p.Backend())
	return p
}

func states(name string, c core.Class) map[string]value.Value {
	return map[string]value.Value{name: value.Of(c)}
}

func TestRunConstantProgram(t *testing.T) {
	t.Parallel()
	p, err := newCompiler().Compile(context.Background(), descriptor(t, "compiled a 5\ncompiled b 7\nop add a b"))
	require.NoError(t, err)
	require.Equal(t, model.C0, p.PlanHeader().Class)

	res, err := newEngine().Run(context.Background(), p, nil)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Of(12), res.Value))
	assert.Zero(t, res.Stats.TableLookups)
	assert.Zero(t, res.Stats.Ops)
	assert.NoError(t, res.OverflowErr())
}

var equivalencePrograms = []string{
	"runtime x state\nop R x\nop add $ x overflow=track\nop T $ power=3",
	"runtime x state\nop M x\nop mul $ x overflow=track",
	"runtime x state\noptimize specialize\nop R x\nop D $\nop T $ power=5",
	"runtime x state\nop lift x\nop R $ power=2\nop project $",
	"runtime x state\nop lift x\nop T $\nop M $",
	"runtime x state\ncompiled a 17\nop sub a x overflow=track\nop M $",
	"runtime x state\ncompiled a 90\ngroup {\n  op add x a overflow=track\n  op D $ power=2\n}\nop sub $ x",
}

func TestBackendEquivalence(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	ctx := context.Background()
	for _, src := range equivalencePrograms {
		d := descriptor(t, src)
		fast := compileFor(t, d, model.BackendFast)
		general := compileFor(t, d, model.BackendGeneral)
		ref, err := ir.Build(d, nil)
		require.NoError(t, err)

		for i := 0; i < core.NumClasses; i++ {
			in := states("x", core.Class(i))
			want, wantOverflow, err := ir.Eval(ref, in)
			require.NoError(t, err)

			fr, err := eng.Run(ctx, fast, in)
			require.NoError(t, err, "%q fast x=%d", src, i)
			gr, err := eng.Run(ctx, general, in)
			require.NoError(t, err, "%q general x=%d", src, i)

			assert.True(t, value.Equal(want, fr.Value), "%q fast x=%d: got %v want %v", src, i, fr.Value, want)
			assert.True(t, value.Equal(want, gr.Value), "%q general x=%d: got %v want %v", src, i, gr.Value, want)
			assert.Equal(t, len(wantOverflow), len(fr.Overflow), "%q fast x=%d", src, i)
			assert.Equal(t, fr.Overflow, gr.Overflow, "%q x=%d", src, i)
		}
	}
}

func TestElementInputs(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	d := descriptor(t, "runtime u element\nop R u\nop D $\nop project $")
	fast := compileFor(t, d, model.BackendFast)
	general := compileFor(t, d, model.BackendGeneral)

	for i := 0; i < core.NumClasses; i++ {
		c := core.Class(i)
		in := map[string]value.Value{"u": value.OfElement(bridge.Lift(c))}
		want := core.Apply(core.Apply(c, core.R, 1), core.D, 1)

		fr, err := eng.Run(context.Background(), fast, in)
		require.NoError(t, err)
		gr, err := eng.Run(context.Background(), general, in)
		require.NoError(t, err)
		assert.True(t, value.Equal(value.Of(want), fr.Value))
		assert.True(t, value.Equal(value.Of(want), gr.Value))
		assert.Equal(t, 1, fr.Stats.Bridges, "entry unlift")
	}
}

func TestMissingBindingBeforeExecution(t *testing.T) {
	t.Parallel()
	d := descriptor(t, "runtime u element\nruntime x state\nop project u\nop add $ x")
	p := compileFor(t, d, model.BackendGeneral)

	// u alone would fail with NotRank1 in the first op; the missing x must win.
	mixed := algebra.Add(bridge.Lift(core.MustClass(3)), bridge.Lift(core.MustClass(50)))
	_, err := newEngine().Run(context.Background(), p, map[string]value.Value{"u": value.OfElement(mixed)})
	require.ErrorIs(t, err, dcerrors.ErrMissingBinding)
	e, ok := dcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "x", e.Context["param"])
	assert.Equal(t, "u,x", e.Context["declared"])

	_, err = newEngine().Run(context.Background(), p, map[string]value.Value{
		"u": value.Of(3),
		"x": value.Of(4),
	})
	assert.ErrorIs(t, err, dcerrors.ErrTypeMismatch)
}

func TestNotRank1AndFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCompiler()
	d := descriptor(t, "prefer fast\nruntime u element\nop R u\nop project $")
	fast, err := c.Compile(ctx, d)
	require.NoError(t, err)
	require.Equal(t, model.BackendFast, fast.Backend())

	relower := func(ctx context.Context) (model.Plan, error) {
		return c.CompileFor(ctx, d, model.BackendGeneral)
	}
	eng := newEngine()

	scaled := map[string]value.Value{"u": value.OfElement(algebra.Scale(bridge.Lift(core.MustClass(21)), 2))}
	_, err = eng.Run(ctx, fast, scaled)
	require.ErrorIs(t, err, dcerrors.ErrNotRank1)
	assert.True(t, dcerrors.IsRecoverable(err))

	res, err := eng.RunWithFallback(ctx, fast, scaled, relower)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, model.BackendGeneral, res.Backend)
	assert.True(t, value.Equal(value.Of(45), res.Value))
	assert.Equal(t, int64(1), eng.Stats().Fallbacks)

	// Two grades mixed: no backend can project it.
	mixed := algebra.Add(bridge.Lift(core.MustClass(0)), algebra.Multiply(
		algebra.MustBasis(algebra.Vector(1), 0, 0),
		algebra.MustBasis(algebra.Vector(2), 0, 0),
	))
	_, err = eng.RunWithFallback(ctx, fast, map[string]value.Value{"u": value.OfElement(mixed)}, relower)
	assert.ErrorIs(t, err, dcerrors.ErrNotRank1)

	_, err = eng.RunWithFallback(ctx, fast, scaled, nil)
	assert.ErrorIs(t, err, dcerrors.ErrNotRank1)
}

func TestOverflowTracking(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	ctx := context.Background()

	p, err := newCompiler().Compile(ctx, descriptor(t, "compiled a 90\nruntime x state\nop add a x overflow=track"))
	require.NoError(t, err)
	res, err := eng.Run(ctx, p, states("x", 10))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Of(4), res.Value))
	assert.Equal(t, []kernels.Overflow{{Step: 0, Op: kernels.NameAdd, Carry: 1}}, res.Overflow)
	assert.ErrorIs(t, res.OverflowErr(), dcerrors.ErrOverflow)

	res, err = eng.Run(ctx, p, states("x", 5))
	require.NoError(t, err)
	assert.Empty(t, res.Overflow)

	dropped, err := newCompiler().Compile(ctx, descriptor(t, "compiled a 90\nruntime x state\nop add a x"))
	require.NoError(t, err)
	res, err = eng.Run(ctx, dropped, states("x", 10))
	require.NoError(t, err)
	assert.Empty(t, res.Overflow)
}

func TestStaticOverflowReported(t *testing.T) {
	t.Parallel()
	p, err := newCompiler().Compile(context.Background(), descriptor(t, `
compiled a 90
compiled b 10
runtime x state
op add a b overflow=track
op R x
op sub $ x overflow=track
`))
	require.NoError(t, err)
	require.Len(t, p.PlanHeader().StaticOverflow, 1)

	res, err := newEngine().Run(context.Background(), p, states("x", 0))
	require.NoError(t, err)
	// R(0) = 24 and 24 - 0 cannot borrow, so only the folded add reports.
	assert.Equal(t, []kernels.Overflow{{Step: 0, Op: kernels.NameAdd, Carry: 1}}, res.Overflow)

	res, err = newEngine().Run(context.Background(), p, states("x", 80))
	require.NoError(t, err)
	require.Len(t, res.Overflow, 2)
	assert.Equal(t, 0, res.Overflow[0].Step)
	assert.Equal(t, 2, res.Overflow[1].Step)
	assert.Equal(t, -1, res.Overflow[1].Carry)
}

func TestTableLookupsCounted(t *testing.T) {
	t.Parallel()
	p, err := newCompiler().Compile(context.Background(), descriptor(t, "optimize specialize\nruntime x state\nop R x\nop add $ 5\nop D $"))
	require.NoError(t, err)
	require.Len(t, p.PlanOps(), 1)
	require.Equal(t, kernels.NameTable, p.PlanOps()[0].Name)

	res, err := newEngine().Run(context.Background(), p, states("x", 7))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.TableLookups)
	want := core.Apply(core.Class((int(core.Apply(7, core.R, 1))+5)%core.NumClasses), core.D, 1)
	assert.True(t, value.Equal(value.Of(want), res.Value))
}

func TestIdentityPlanRuns(t *testing.T) {
	t.Parallel()
	p, err := newCompiler().Compile(context.Background(), descriptor(t, "runtime x state\nop lift x\nop project $"))
	require.NoError(t, err)
	require.Empty(t, p.PlanOps())

	res, err := newEngine().Run(context.Background(), p, states("x", 33))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Of(33), res.Value))
}

func TestConcurrentRuns(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	p := compileFor(t, descriptor(t, "runtime x state\nop lift x\nop R $\nop T $ power=2\nop project $"), model.BackendGeneral)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < core.NumClasses; i++ {
				res, err := eng.Run(context.Background(), p, states("x", core.Class(i)))
				if !assert.NoError(t, err) {
					return
				}
				want := core.Apply(core.Apply(core.Class(i), core.R, 1), core.T, 2)
				assert.True(t, value.Equal(value.Of(want), res.Value))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, eng.ArenaStats().InUse)
	assert.Equal(t, int64(8*core.NumClasses), eng.Stats().TotalExecutions)
}

func TestRunBatch(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	p := compileFor(t, descriptor(t, "runtime x state\nop M x"), model.BackendFast)

	batch := make([]map[string]value.Value, core.NumClasses)
	for i := range batch {
		batch[i] = states("x", core.Class(i))
	}
	results, err := eng.RunBatch(context.Background(), p, batch)
	require.NoError(t, err)
	require.Len(t, results, core.NumClasses)
	for i, res := range results {
		assert.True(t, value.Equal(value.Of(core.Apply(core.Class(i), core.M, 1)), res.Value))
	}

	batch[40] = nil
	_, err = eng.RunBatch(context.Background(), p, batch)
	assert.ErrorIs(t, err, dcerrors.ErrMissingBinding)
}

func TestRunRejectsUnknownOps(t *testing.T) {
	t.Parallel()
	p := &model.ClassPlan{
		Header: model.Header{
			Inputs: []model.Input{{Name: "x", Kind: value.KindState}},
			Output: model.Ref{Kind: model.RefPrev},
		},
		Ops: []model.Op{{Code: 0x7f, Name: "nope", Args: []model.Ref{{Kind: model.RefInput, Name: "x"}}}},
	}
	_, err := newEngine().Run(context.Background(), p, states("x", 1))
	assert.ErrorIs(t, err, dcerrors.ErrUnknownOp)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	p := compileFor(t, descriptor(t, "runtime x state\nop R x"), model.BackendFast)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, p, states("x", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkClassPlan(b *testing.B) {
	p := compileFor(b, descriptor(b, "runtime x state\nop R x\nop add $ x overflow=track\nop T $ power=3\nop M $"), model.BackendFast)
	eng := NewEngine(EngineOptions{Logger: logging.Nop()})
	in := states("x", 21)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Run(ctx, p, in); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAlgebraPlan(b *testing.B) {
	p := compileFor(b, descriptor(b, "runtime x state\nop R x\nop add $ x overflow=track\nop T $ power=3\nop M $"), model.BackendGeneral)
	eng := NewEngine(EngineOptions{Logger: logging.Nop()})
	in := states("x", 21)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Run(ctx, p, in); err != nil {
			b.Fatal(err)
		}
	}
}
