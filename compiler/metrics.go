package compiler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/model"
)

var (
	tracer = otel.Tracer("dualc.compiler")
	meter  = otel.Meter("dualc.compiler")
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualc",
		Subsystem: "compiler",
		Name:      "cache_hits_total",
		Help:      "Plans served from a cache, by level.",
	}, []string{"level"})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dualc",
		Subsystem: "compiler",
		Name:      "cache_misses_total",
		Help:      "Compilations not served from any cache.",
	})

	compilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualc",
		Subsystem: "compiler",
		Name:      "compiles_total",
		Help:      "Completed compilations, by computation class and backend.",
	}, []string{"class", "backend"})

	compileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualc",
		Subsystem: "compiler",
		Name:      "errors_total",
		Help:      "Failed compilations, by error code.",
	}, []string{"code"})
)

var (
	compileLatency metric.Float64Histogram
	planOps        metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compileLatency, err = meter.Float64Histogram(
			"dualc_compile_duration_seconds",
			metric.WithDescription("Duration of uncached compilations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		planOps, err = meter.Int64Histogram(
			"dualc_plan_ops",
			metric.WithDescription("Number of ops in compiled plans"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCompile(ctx context.Context, duration time.Duration, p model.Plan, err error) {
	if err != nil {
		compileErrors.WithLabelValues(errorCode(err)).Inc()
	} else {
		compilesTotal.WithLabelValues(p.PlanHeader().Class.String(), p.Backend().String()).Inc()
	}

	if initMetrics() != nil {
		return
	}
	compileLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", err == nil)))
	if err == nil {
		planOps.Record(ctx, int64(len(p.PlanOps())),
			metric.WithAttributes(attribute.String("backend", p.Backend().String())))
	}
}

func errorCode(err error) string {
	if e, ok := dcerrors.As(err); ok {
		return e.Code
	}
	return "UNKNOWN"
}
