package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

const storageScopeName = "github.com/steveyegge/tenet/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Reads and whole transactions get a span and are counted in
// tenet.storage.* metrics; statements inside a transaction are not traced
// individually.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s)
}

func newInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("tenet.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("tenet.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tenet.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func idAttr(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("tenet.entity.id", id)}
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// ── Transactions ────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	var attrs []attribute.KeyValue
	if op := storage.OperationFrom(ctx); op != "" {
		attrs = append(attrs, attribute.String("tenet.operation", op))
	}
	ctx, span, t := s.op(ctx, "RunInTransaction", attrs...)
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) OrgID() string { return s.inner.OrgID() }

func (s *InstrumentedStorage) Close() error { return s.inner.Close() }

// ── Decisions ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetDecision(ctx context.Context, id string) (*types.Decision, error) {
	attrs := idAttr(id)
	ctx, span, t := s.op(ctx, "GetDecision", attrs...)
	v, err := s.inner.GetDecision(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDecisions(ctx context.Context, filter types.DecisionFilter) ([]*types.Decision, error) {
	ctx, span, t := s.op(ctx, "ListDecisions")
	v, err := s.inner.ListDecisions(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tenet.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Assumptions ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetAssumption(ctx context.Context, id string) (*types.Assumption, error) {
	attrs := idAttr(id)
	ctx, span, t := s.op(ctx, "GetAssumption", attrs...)
	v, err := s.inner.GetAssumption(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListAssumptions(ctx context.Context, filter types.AssumptionFilter) ([]*types.Assumption, error) {
	ctx, span, t := s.op(ctx, "ListAssumptions")
	v, err := s.inner.ListAssumptions(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tenet.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetLinkedAssumptions(ctx context.Context, decisionID string) ([]*types.Assumption, error) {
	attrs := idAttr(decisionID)
	ctx, span, t := s.op(ctx, "GetLinkedAssumptions", attrs...)
	v, err := s.inner.GetLinkedAssumptions(ctx, decisionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetLinkedDecisions(ctx context.Context, assumptionID string) ([]*types.Decision, error) {
	attrs := idAttr(assumptionID)
	ctx, span, t := s.op(ctx, "GetLinkedDecisions", attrs...)
	v, err := s.inner.GetLinkedDecisions(ctx, assumptionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) IsLinked(ctx context.Context, decisionID, assumptionID string) (bool, error) {
	ctx, span, t := s.op(ctx, "IsLinked")
	v, err := s.inner.IsLinked(ctx, decisionID, assumptionID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Constraints and dependencies ────────────────────────────────────────────

func (s *InstrumentedStorage) GetConstraint(ctx context.Context, id string) (*types.Constraint, error) {
	attrs := idAttr(id)
	ctx, span, t := s.op(ctx, "GetConstraint", attrs...)
	v, err := s.inner.GetConstraint(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListConstraints(ctx context.Context) ([]*types.Constraint, error) {
	ctx, span, t := s.op(ctx, "ListConstraints")
	v, err := s.inner.ListConstraints(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetDependencies(ctx context.Context, decisionID string) ([]*types.Dependency, error) {
	attrs := idAttr(decisionID)
	ctx, span, t := s.op(ctx, "GetDependencies", attrs...)
	v, err := s.inner.GetDependencies(ctx, decisionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDependencies(ctx context.Context) ([]*types.Dependency, error) {
	ctx, span, t := s.op(ctx, "ListDependencies")
	v, err := s.inner.ListDependencies(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Conflicts ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	attrs := idAttr(id)
	ctx, span, t := s.op(ctx, "GetConflict", attrs...)
	v, err := s.inner.GetConflict(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.Conflict, error) {
	ctx, span, t := s.op(ctx, "ListConflicts")
	v, err := s.inner.ListConflicts(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tenet.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) FindOpenConflict(ctx context.Context, kind types.ConflictKind, a, b string) (*types.Conflict, error) {
	attrs := []attribute.KeyValue{attribute.String("tenet.conflict.kind", string(kind))}
	ctx, span, t := s.op(ctx, "FindOpenConflict", attrs...)
	v, err := s.inner.FindOpenConflict(ctx, kind, a, b)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) IsSuppressed(ctx context.Context, kind types.ConflictKind, fingerprint string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("tenet.conflict.kind", string(kind))}
	ctx, span, t := s.op(ctx, "IsSuppressed", attrs...)
	v, err := s.inner.IsSuppressed(ctx, kind, fingerprint)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Edit requests and history ───────────────────────────────────────────────

func (s *InstrumentedStorage) GetEditRequest(ctx context.Context, id string) (*types.EditRequest, error) {
	attrs := idAttr(id)
	ctx, span, t := s.op(ctx, "GetEditRequest", attrs...)
	v, err := s.inner.GetEditRequest(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetPendingEditRequest(ctx context.Context, decisionID string) (*types.EditRequest, error) {
	attrs := idAttr(decisionID)
	ctx, span, t := s.op(ctx, "GetPendingEditRequest", attrs...)
	v, err := s.inner.GetPendingEditRequest(ctx, decisionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListEditRequests(ctx context.Context, decisionID string, status *types.EditRequestStatus) ([]*types.EditRequest, error) {
	ctx, span, t := s.op(ctx, "ListEditRequests")
	v, err := s.inner.ListEditRequests(ctx, decisionID, status)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetEvents(ctx context.Context, decisionID string) ([]*types.VersionEvent, error) {
	attrs := idAttr(decisionID)
	ctx, span, t := s.op(ctx, "GetEvents", attrs...)
	v, err := s.inner.GetEvents(ctx, decisionID)
	if err == nil {
		span.SetAttributes(attribute.Int("tenet.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}
