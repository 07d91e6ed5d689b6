package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/telemetry"
)

const engineScopeName = "github.com/steveyegge/tenet/engine"

type engineMetrics struct {
	operations  metric.Int64Counter
	errors      metric.Int64Counter
	conflicts   metric.Int64Counter
	evaluations metric.Int64Counter
}

func newEngineTelemetry() (trace.Tracer, *engineMetrics) {
	m := telemetry.Meter(engineScopeName)
	ops, _ := m.Int64Counter("tenet.engine.operations",
		metric.WithDescription("Total engine operations executed"),
	)
	errs, _ := m.Int64Counter("tenet.engine.errors",
		metric.WithDescription("Total engine operations that failed"),
	)
	conflicts, _ := m.Int64Counter("tenet.conflicts.detected",
		metric.WithDescription("Conflicts inserted by detection"),
	)
	evals, _ := m.Int64Counter("tenet.health.evaluations",
		metric.WithDescription("Health evaluations run, by outcome"),
	)
	return telemetry.Tracer(engineScopeName), &engineMetrics{
		operations:  ops,
		errors:      errs,
		conflicts:   conflicts,
		evaluations: evals,
	}
}

// begin opens the span of an engine operation and names the operation for
// the store. The returned func ends the span; pass it the operation error.
//
//	ctx, done := e.begin(ctx, "LockDecision")
//	defer func() { done(err) }()
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	all := append([]attribute.KeyValue{
		attribute.String("tenet.operation", op),
		attribute.String("tenet.org", e.OrgID()),
	}, attrs...)
	ctx, span := e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(all...))
	ctx = storage.WithOperation(ctx, op)
	opAttr := metric.WithAttributes(attribute.String("tenet.operation", op))
	e.metrics.operations.Add(ctx, 1, opAttr)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.errors.Add(ctx, 1, opAttr)
			e.logger.Debug("operation failed", "op", op, "error", err)
		}
		span.End()
	}
}
