package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sbl8/dualc/model"
)

var (
	tracer = otel.Tracer("dualc.runtime")
	meter  = otel.Meter("dualc.runtime")
)

var fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dualc",
	Subsystem: "runtime",
	Name:      "fallbacks_total",
	Help:      "Fast-plan runs retried on the general backend after NotRank1.",
})

var (
	runLatency metric.Float64Histogram
	runTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"dualc_run_duration_seconds",
			metric.WithDescription("Duration of plan runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"dualc_run_total",
			metric.WithDescription("Total number of plan runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, backend model.Backend, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend.String()),
		attribute.Bool("success", err == nil),
	)
	runLatency.Record(ctx, d.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
}
