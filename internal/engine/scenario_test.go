package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/types"
)

func TestBrokenAssumptionDegradesHealth(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	d := h.decision(t, "Use Postgres for billing")
	h.universal(t, "Traffic stays under 10k rps", d.ID)
	a2 := h.universal(t, "The team knows SQL", d.ID)

	got := h.get(t, d.ID)
	assert.Equal(t, 100, got.HealthSignal)
	assert.Equal(t, types.LifecycleStable, got.Lifecycle)

	h.setStatus(t, a2.ID, types.StatusBroken)

	got = h.get(t, d.ID)
	assert.Equal(t, 50, got.HealthSignal)
	assert.Equal(t, types.LifecycleAtRisk, got.Lifecycle)

	changes, err := h.HealthHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 100, changes[0].OldHealth)
	assert.Equal(t, 50, changes[0].NewHealth)
	assert.Equal(t, -50, changes[0].HealthChange)
	assert.Equal(t, types.TriggerAssumptionStatusChange, changes[0].TriggeredBy)

	assert.Len(t, h.sink.ofType(notification.TypeHealthDegraded), 1)
	lc := h.sink.ofType(notification.TypeLifecycleChanged)
	require.Len(t, lc, 1)
	assert.Equal(t, d.ID, lc[0].DecisionID)

	rels, err := h.RelationHistory(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 2)
	h.requireReplay(t, d.ID)
}

func TestShakyAssumptionsKeepHealthBelowFull(t *testing.T) {
	h := setupEngine(t)
	d := h.decision(t, "Ship the mobile app first")
	a := h.universal(t, "Most users are on phones", d.ID)
	for i := range 3 {
		h.universal(t, fmt.Sprintf("valid premise %d", i), d.ID)
	}

	h.setStatus(t, a.ID, types.StatusShaky)
	got := h.get(t, d.ID)
	// (1+1+1+0.5)/4 rounds to 88; still stable.
	assert.Equal(t, 88, got.HealthSignal)
	assert.Equal(t, types.LifecycleStable, got.Lifecycle)
	assert.Less(t, got.HealthSignal, types.MaxHealth)
}

func TestValidateAResolution(t *testing.T) {
	h := setupEngine(t, noDetectOnWrite)
	ctx := context.Background()

	d1 := h.decision(t, "Scale the web tier horizontally")
	d2 := h.decision(t, "Buy reserved capacity")
	a1 := h.universal(t, "Load will double next year", d1.ID)
	a3 := h.universal(t, "Load will stay flat next year", d1.ID)
	require.NoError(t, h.LinkAssumption(ctx, lead, d2.ID, a3.ID, "capacity plan"))
	h.classifier.set(a1.Description, a3.Description, types.ConflictContradictory, 0.92)

	res, err := h.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ConflictsDetected)

	open := h.openConflicts(t)
	require.Len(t, open, 1)
	c := open[0]
	assert.Equal(t, types.KindAssumption, c.Kind)
	assert.True(t, c.Involves(a1.ID) && c.Involves(a3.ID))

	// conflict_detected is critical at this confidence and reaches both
	// decisions linking an assumption of the pair.
	notes := h.sink.ofType(notification.TypeConflictDetected)
	require.NotEmpty(t, notes)
	for _, n := range notes {
		assert.Equal(t, notification.SeverityCritical, n.Severity)
	}

	action := types.ActionValidateA
	if c.EntityA != a1.ID {
		action = types.ActionValidateB
	}
	resolved, err := h.ResolveAssumptionConflict(ctx, lead, c.ID, action, "growth forecast confirmed")
	require.NoError(t, err)
	assert.False(t, resolved.IsOpen())

	got1, err := h.GetAssumption(ctx, a1.ID)
	require.NoError(t, err)
	got3, err := h.GetAssumption(ctx, a3.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusValid, got1.Status)
	assert.Equal(t, types.StatusBroken, got3.Status)

	dd1 := h.get(t, d1.ID)
	assert.Equal(t, 50, dd1.HealthSignal)
	assert.Equal(t, types.LifecycleAtRisk, dd1.Lifecycle)
	dd2 := h.get(t, d2.ID)
	assert.Equal(t, 0, dd2.HealthSignal)
	assert.Equal(t, types.LifecycleInvalidated, dd2.Lifecycle)

	for _, id := range []string{d1.ID, d2.ID} {
		evs, err := h.Timeline(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, eventTypes(evs), types.EventAssumptionConflictResolved)
		hh, err := h.HealthHistory(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, hh)
		assert.Equal(t, types.TriggerConflictResolution, hh[0].TriggeredBy)
	}

	var critical bool
	for _, n := range h.sink.ofType(notification.TypeHealthDegraded) {
		if n.DecisionID == d2.ID && n.Severity == notification.SeverityCritical {
			critical = true
		}
	}
	assert.True(t, critical, "invalidated decision should get a critical notification")

	assert.Empty(t, h.openConflicts(t))
	res, err = h.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ConflictsDetected, "a broken assumption is not compared")

	_, err = h.ResolveAssumptionConflict(ctx, lead, c.ID, action, "again")
	assert.ErrorIs(t, err, ErrValidation)
	h.requireReplay(t, d1.ID, d2.ID)
}

func TestDeprecateBothResolution(t *testing.T) {
	h := setupEngine(t, noDetectOnWrite)
	ctx := context.Background()

	d := h.decision(t, "Adopt four-day week")
	a := h.universal(t, "Output stays the same", d.ID)
	b := h.universal(t, "Output drops a fifth", d.ID)
	h.classifier.set(a.Description, b.Description, types.ConflictContradictory, 0.7)
	_, err := h.DetectConflicts(ctx)
	require.NoError(t, err)
	c := h.openConflicts(t)[0]

	_, err = h.ResolveAssumptionConflict(ctx, lead, c.ID, types.ActionPrioritizeA, "")
	assert.ErrorIs(t, err, ErrValidation, "decision action on an assumption conflict")

	_, err = h.ResolveAssumptionConflict(ctx, lead, c.ID, types.ActionDeprecateBoth, "both unproven")
	require.NoError(t, err)
	got := h.get(t, d.ID)
	assert.Equal(t, 0, got.HealthSignal)
	assert.Equal(t, types.LifecycleInvalidated, got.Lifecycle)

	evs, err := h.Timeline(ctx, d.ID)
	require.NoError(t, err)
	var payload types.AssumptionConflictResolved
	for _, ev := range evs {
		if p, ok := ev.Payload.(types.AssumptionConflictResolved); ok {
			payload = p
		}
	}
	assert.Equal(t, types.ActionDeprecateBoth, payload.Action)
	assert.Len(t, payload.StatusChanges, 2)
}

func TestUnknownDecision(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	_, err := h.Timeline(ctx, "dec-missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.GetDecision(ctx, "dec-missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.CreateAssumption(ctx, lead, "orphan", types.ScopeDecisionSpecific, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.CreateDecision(ctx, lead, NewDecision{Title: "  "})
	assert.ErrorIs(t, err, ErrValidation)
}
