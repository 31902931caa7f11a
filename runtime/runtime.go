// Package runtime executes compiled plans.
//
// An Engine runs a ClassPlan on the fast executor and an AlgebraPlan on
// the general executor. Both share the same contract:
//  1. Every declared input is bound with a value of its declared kind
//     before any op runs
//  2. Ops execute in plan order, each reading its operands from inputs,
//     constants or the previous op's result
//  3. The output is bridged to the plan's output kind
//  4. Overflow records, static ones included, are returned in step order
//
// Plans are immutable. The general executor's working buffers come from a
// per-engine Arena and never outlive a run, so any number of goroutines
// may run the same plan on the same Engine.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/logging"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/value"
)

// EngineOptions configures engine behavior.
type EngineOptions struct {
	// Registry resolves plan op codes. It must be the registry the plans
	// were compiled against. Nil means kernels.Default().
	Registry *kernels.Registry
	Logger   *slog.Logger

	// Workers bounds RunBatch concurrency. Zero means GOMAXPROCS.
	Workers     int
	EnableStats bool
}

// DefaultEngineOptions provides sensible runtime defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Workers:     goruntime.GOMAXPROCS(0),
		EnableStats: true,
	}
}

// ExecutionStats aggregates every run of an engine.
type ExecutionStats struct {
	TotalExecutions int64
	Failures        int64
	Fallbacks       int64
	AverageLatency  time.Duration
	OpExecutions    map[string]int64
}

// Stats counts the work of one run.
type Stats struct {
	// Ops is the number of plan ops executed.
	Ops int
	// TableLookups counts executions of specialized table ops.
	TableLookups int
	// Bridges counts lifts and projections performed at run time, at
	// entry, between ops and at exit.
	Bridges int
}

// Result is the outcome of one run.
type Result struct {
	RunID uuid.UUID
	Value value.Value
	// Overflow lists tracked ring wraparounds in step order.
	Overflow []kernels.Overflow
	Stats    Stats
	Backend  model.Backend
	// FellBack is set when a fast plan failed with NotRank1 and the
	// result came from the general backend.
	FellBack bool
}

// OverflowErr returns an Overflow error when the run recorded any
// tracked overflow, nil otherwise.
func (r *Result) OverflowErr() error {
	if len(r.Overflow) == 0 {
		return nil
	}
	first := r.Overflow[0]
	return dcerrors.New(dcerrors.CodeOverflow, dcerrors.CategoryRuntime, "tracked ring operation wrapped around").
		WithContext("count", strconv.Itoa(len(r.Overflow))).
		WithContext("step", strconv.Itoa(first.Step)).
		WithContext("op", first.Op).
		WithContext("carry", strconv.Itoa(first.Carry))
}

// Engine executes plans.
type Engine struct {
	reg    *kernels.Registry
	logger *slog.Logger
	arena  *Arena
	opts   EngineOptions

	mu    sync.Mutex
	stats ExecutionStats
}

// NewEngine returns an engine configured by opts.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Registry == nil {
		opts.Registry = kernels.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = goruntime.GOMAXPROCS(0)
	}
	return &Engine{
		reg:    opts.Registry,
		logger: logging.OrDefault(opts.Logger),
		arena:  NewArena(),
		opts:   opts,
	}
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Run executes p on a shared engine over the default registry.
func Run(ctx context.Context, p model.Plan, inputs map[string]value.Value) (*Result, error) {
	defaultEngineOnce.Do(func() {
		defaultEngine = NewEngine(EngineOptions{})
	})
	return defaultEngine.Run(ctx, p, inputs)
}

// Run executes p with inputs bound to its runtime parameters.
func (e *Engine) Run(ctx context.Context, p model.Plan, inputs map[string]value.Value) (res *Result, err error) {
	h := p.PlanHeader()
	runID := uuid.New()
	ctx, span := tracer.Start(ctx, "runtime.Run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("plan", h.Name),
			attribute.String("backend", p.Backend().String()),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		e.record(ctx, p, res, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(
			attribute.Int("ops", res.Stats.Ops),
			attribute.Int("bridges", res.Stats.Bridges),
			attribute.Int("overflow", len(res.Overflow)),
		)
		span.SetStatus(codes.Ok, "")
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInputs(h, inputs); err != nil {
		return nil, err
	}
	specs, err := e.resolve(p)
	if err != nil {
		return nil, err
	}

	res = &Result{RunID: runID, Backend: p.Backend()}
	switch plan := p.(type) {
	case *model.ClassPlan:
		x := &classExec{plan: plan, specs: specs, res: res}
		err = x.run(inputs)
	case *model.AlgebraPlan:
		acc := e.arena.acquire()
		x := &algebraExec{plan: plan, specs: specs, acc: acc, res: res}
		err = x.run(inputs)
		e.arena.release(acc)
	default:
		err = dcerrors.CorruptPlan("unknown plan type %T", p)
	}
	if err != nil {
		return nil, err
	}

	if len(h.StaticOverflow) > 0 {
		res.Overflow = append(append([]kernels.Overflow(nil), h.StaticOverflow...), res.Overflow...)
	}
	sort.SliceStable(res.Overflow, func(i, j int) bool {
		return res.Overflow[i].Step < res.Overflow[j].Step
	})

	e.logger.Debug("run complete",
		"run_id", runID,
		"plan_id", h.ID,
		"backend", p.Backend(),
		"ops", res.Stats.Ops,
		"table_lookups", res.Stats.TableLookups,
		"bridges", res.Stats.Bridges,
	)
	return res, nil
}

// Relower produces the general-backend plan of the descriptor a fast plan
// came from, typically by calling compiler.Compiler.CompileFor.
type Relower func(ctx context.Context) (model.Plan, error)

// RunWithFallback runs p and, when a fast plan fails with NotRank1,
// retries once on the plan relower returns. Any other failure, or any
// failure of a general plan, is returned as is.
func (e *Engine) RunWithFallback(ctx context.Context, p model.Plan, inputs map[string]value.Value, relower Relower) (*Result, error) {
	res, err := e.Run(ctx, p, inputs)
	if err == nil || relower == nil || p.Backend() != model.BackendFast || !dcerrors.IsRecoverable(err) {
		return res, err
	}

	e.logger.Info("falling back to general backend", "plan", p.PlanHeader().Name, "cause", err)
	general, rerr := relower(ctx)
	if rerr != nil {
		return nil, fmt.Errorf("relower after %v: %w", err, rerr)
	}
	if general.Backend() != model.BackendGeneral {
		return nil, dcerrors.CapabilityViolation(general.Backend().String(), general.PlanHeader().Class.String()).
			WithCause(err)
	}
	res, err = e.Run(ctx, general, inputs)
	if err != nil {
		return nil, err
	}
	res.FellBack = true
	e.mu.Lock()
	e.stats.Fallbacks++
	e.mu.Unlock()
	fallbacksTotal.Inc()
	return res, nil
}

// RunBatch runs p once per input set on up to Workers goroutines. Results
// are in input order. The first failure cancels the remaining runs.
func (e *Engine) RunBatch(ctx context.Context, p model.Plan, batch []map[string]value.Value) ([]*Result, error) {
	out := make([]*Result, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, inputs := range batch {
		g.Go(func() error {
			res, err := e.Run(ctx, p, inputs)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the aggregate execution statistics.
func (e *Engine) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.OpExecutions = make(map[string]int64, len(e.stats.OpExecutions))
	for k, v := range e.stats.OpExecutions {
		out.OpExecutions[k] = v
	}
	return out
}

// ArenaStats reports the general executor's buffer usage.
func (e *Engine) ArenaStats() ArenaStats {
	return e.arena.Stats()
}

// checkInputs binds every declared input before anything runs.
func checkInputs(h *model.Header, inputs map[string]value.Value) error {
	for _, in := range h.Inputs {
		v, ok := inputs[in.Name]
		if !ok || v == nil {
			return dcerrors.MissingBinding(in.Name).WithContext("declared", strings.Join(h.InputNames(), ","))
		}
		if v.Kind() != in.Kind {
			return dcerrors.TypeMismatch("input", "input %q is %s, declared %s", in.Name, v.Kind(), in.Kind).
				WithContext("input", in.Name)
		}
	}
	return nil
}

// resolve maps each plan op to its registry spec.
func (e *Engine) resolve(p model.Plan) ([]*kernels.OpSpec, error) {
	ops := p.PlanOps()
	specs := make([]*kernels.OpSpec, len(ops))
	for i := range ops {
		spec, ok := e.reg.ByCode(ops[i].Code)
		if !ok || spec.Name != ops[i].Name {
			return nil, dcerrors.UnknownOp(ops[i].Name).
				WithContext("code", strconv.Itoa(int(ops[i].Code)))
		}
		if spec.Arity != len(ops[i].Args) {
			return nil, dcerrors.CorruptPlan("op %d (%s) has %d operands, want %d", i, spec.Name, len(ops[i].Args), spec.Arity)
		}
		specs[i] = spec
	}
	return specs, nil
}

func (e *Engine) record(ctx context.Context, p model.Plan, res *Result, err error, d time.Duration) {
	recordRun(ctx, p.Backend(), d, err)
	if !e.opts.EnableStats {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalExecutions++
	if err != nil {
		e.stats.Failures++
	}
	n := e.stats.TotalExecutions
	e.stats.AverageLatency = time.Duration((int64(e.stats.AverageLatency)*(n-1) + int64(d)) / n)
	if res == nil {
		return
	}
	if e.stats.OpExecutions == nil {
		e.stats.OpExecutions = make(map[string]int64)
	}
	for _, op := range p.PlanOps() {
		e.stats.OpExecutions[op.Name]++
	}
}
