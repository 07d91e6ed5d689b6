package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/storage/sqlstore"
	"github.com/steveyegge/tenet/internal/types"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("TENET_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "tn", "test"))
	assert.False(t, Enabled())

	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "noop tracer should produce invalid span contexts")
	span.End()
	require.NoError(t, Shutdown(context.Background()))
}

func TestInitEnabledWithoutExporters(t *testing.T) {
	t.Setenv("TENET_OTEL_ENABLED", "true")
	t.Setenv("TENET_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	require.NoError(t, Init(context.Background(), "tn", "test"))
	_, span := Tracer("").Start(context.Background(), "real")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := Meter("").Int64Counter("tenet.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, Shutdown(context.Background()))
	assert.Empty(t, shutdownFns)
}

func TestWrapStorageDisabledIsIdentity(t *testing.T) {
	t.Setenv("TENET_OTEL_ENABLED", "")
	assert.Nil(t, WrapStorage(nil))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestInstrumentedStoragePassesThrough(t *testing.T) {
	ctx := context.Background()
	inner, err := sqlstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tenet.db"), "acme")
	require.NoError(t, err)
	s := newInstrumentedStorage(inner)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "acme", s.OrgID())

	_, err = s.GetDecision(ctx, "dec-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	d := &types.Decision{
		ID:           "dec-0000000001",
		Title:        "Instrumented write",
		Lifecycle:    types.LifecycleStable,
		HealthSignal: types.MaxHealth,
		Version:      1,
	}
	err = s.RunInTransaction(storage.WithOperation(ctx, "create"), func(tx storage.Transaction) error {
		return tx.CreateDecision(ctx, d)
	})
	require.NoError(t, err)

	list, err := s.ListDecisions(ctx, types.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Instrumented write", list[0].Title)
}
