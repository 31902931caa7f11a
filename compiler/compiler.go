// Package compiler turns descriptors into executable plans.
//
// The pipeline is fixed:
//  1. Build the descriptor into IR and check operand kinds
//  2. Normalize the IR to a fixpoint
//  3. Classify the normal form into C0..C3 and check the hint
//  4. Select a backend from the class and the preference
//  5. Lower to a ClassPlan or an AlgebraPlan
//
// A Compiler memoizes plans in an in-memory LRU and, when configured, in a
// persistent plan store. Concurrent compilations of the same descriptor
// share a single pipeline run.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/sbl8/dualc/ir"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/logging"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/store"
)

// Options configures a Compiler.
type Options struct {
	// Registry resolves op names. Nil means kernels.Default().
	Registry *kernels.Registry
	Logger   *slog.Logger

	// CacheSize bounds the in-memory plan cache. Zero means
	// DefaultCacheSize; negative disables caching.
	CacheSize int

	// Store, when set, is consulted after the in-memory cache and receives
	// every freshly compiled plan.
	Store *store.Store

	// Specialize enables table specialization for every descriptor, in
	// addition to descriptors that ask for it.
	Specialize bool
	// MaxPasses bounds normalization. Zero means ir.DefaultMaxPasses.
	MaxPasses int
}

// Compiler compiles descriptors. It is safe for concurrent use.
type Compiler struct {
	reg    *kernels.Registry
	logger *slog.Logger
	store  *store.Store

	specialize bool
	maxPasses  int

	cache *planCache
	group singleflight.Group
}

// New returns a Compiler configured by opts.
func New(opts Options) *Compiler {
	reg := opts.Registry
	if reg == nil {
		reg = kernels.Default()
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = ir.DefaultMaxPasses
	}
	return &Compiler{
		reg:        reg,
		logger:     logging.OrDefault(opts.Logger),
		store:      opts.Store,
		specialize: opts.Specialize,
		maxPasses:  maxPasses,
		cache:      newPlanCache(size),
	}
}

// Compile compiles desc with a default Compiler and no caching beyond the
// call.
func Compile(ctx context.Context, desc *model.Descriptor) (model.Plan, error) {
	return New(Options{CacheSize: -1}).Compile(ctx, desc)
}

// Compile compiles desc for the backend its preference selects.
func (c *Compiler) Compile(ctx context.Context, desc *model.Descriptor) (model.Plan, error) {
	return c.compile(ctx, desc, desc.Prefer())
}

// CompileFor compiles desc for a specific backend, overriding its
// preference. The runtime uses it to relower a fast plan for the general
// backend.
func (c *Compiler) CompileFor(ctx context.Context, desc *model.Descriptor, backend model.Backend) (model.Plan, error) {
	return c.compile(ctx, desc, backend.String())
}

// CompileFile compiles the descriptor at src and writes the plan to out.
func (c *Compiler) CompileFile(ctx context.Context, src, out string) (model.Plan, error) {
	desc, err := model.LoadDescriptor(src)
	if err != nil {
		return nil, err
	}
	p, err := c.Compile(ctx, desc)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(out)
	if err != nil {
		return nil, err
	}
	if err := model.Write(f, p); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	c.logger.Info("plan written", "path", out, "plan_id", p.PlanHeader().ID)
	return p, nil
}

// CacheStats reports the in-memory cache counters.
func (c *Compiler) CacheStats() CacheStats {
	return c.cache.stats()
}

// Purge empties the in-memory cache.
func (c *Compiler) Purge() {
	c.cache.purge()
}

func (c *Compiler) compile(ctx context.Context, desc *model.Descriptor, prefer string) (model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		compileErrors.WithLabelValues(errorCode(err)).Inc()
		return nil, err
	}
	fp, err := desc.Fingerprint()
	if err != nil {
		return nil, err
	}
	key := c.cacheKey(fp, prefer)

	if p, ok := c.cache.get(key); ok {
		cacheHits.WithLabelValues("memory").Inc()
		return p, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if p := c.fromStore(ctx, key); p != nil {
			cacheHits.WithLabelValues("store").Inc()
			c.cache.put(key, p)
			return p, nil
		}
		cacheMisses.Inc()

		p, err := c.run(ctx, desc, fp, prefer)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, p)
		c.toStore(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("compilation shared", "descriptor", desc.Name)
	}
	return v.(model.Plan), nil
}

// run executes the pipeline once.
func (c *Compiler) run(ctx context.Context, desc *model.Descriptor, fp, prefer string) (p model.Plan, err error) {
	ctx, span := tracer.Start(ctx, "compiler.Compile",
		trace.WithAttributes(
			attribute.String("descriptor", desc.Name),
			attribute.String("fingerprint", fp),
			attribute.String("prefer", prefer),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		recordCompile(ctx, time.Since(start), p, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("compile failed", "descriptor", desc.Name, "error", err)
		}
	}()

	prog, err := ir.Build(desc, c.reg)
	if err != nil {
		return nil, err
	}
	norm := ir.Normalize(prog, ir.Options{
		Specialize: c.specialize || desc.Specialize(),
		MaxPasses:  c.maxPasses,
		Registry:   c.reg,
	})
	span.AddEvent("normalized", trace.WithAttributes(attribute.Int("atoms", len(ir.Atoms(norm)))))

	class := Classify(norm)
	if err := checkHint(desc.ComplexityHint, class); err != nil {
		return nil, err
	}
	backend, err := SelectBackend(class, prefer)
	if err != nil {
		return nil, err
	}

	h, err := header(desc, fp, class)
	if err != nil {
		return nil, err
	}
	p, err = Lower(norm, backend, h)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("class", class.String()),
		attribute.String("backend", backend.String()),
		attribute.Int("ops", len(p.PlanOps())),
	)
	span.SetStatus(codes.Ok, "")
	c.logger.Debug("compiled",
		"descriptor", desc.Name,
		"plan_id", h.ID,
		"fingerprint", fp,
		"class", class,
		"backend", backend,
		"ops", len(p.PlanOps()),
	)
	return p, nil
}

func header(desc *model.Descriptor, fp string, class model.Complexity) (model.Header, error) {
	kinds, err := ir.RuntimeKinds(desc)
	if err != nil {
		return model.Header{}, err
	}
	inputs := make([]model.Input, 0, len(kinds))
	for name, k := range kinds {
		inputs = append(inputs, model.Input{Name: name, Kind: k})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

	return model.Header{
		ID:          model.NewID(),
		Name:        desc.Name,
		Version:     desc.Version,
		Namespace:   desc.Namespace,
		Fingerprint: fp,
		Class:       class,
		Inputs:      inputs,
	}, nil
}

// cacheKey identifies a compilation: the descriptor plus every option
// that changes the result.
func (c *Compiler) cacheKey(fp, prefer string) string {
	return fmt.Sprintf("%s/%s/s%s/p%d", fp, prefer, strconv.FormatBool(c.specialize), c.maxPasses)
}

func (c *Compiler) fromStore(ctx context.Context, key string) model.Plan {
	if c.store == nil {
		return nil
	}
	p, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("plan store read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return p
}

func (c *Compiler) toStore(ctx context.Context, key string, p model.Plan) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(ctx, key, p); err != nil {
		c.logger.Warn("plan store write failed", "key", key, "error", err)
	}
}
