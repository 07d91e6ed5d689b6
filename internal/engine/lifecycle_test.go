package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/history"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

func TestDependencyCycleLeavesGraphUnchanged(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d1 := h.decision(t, "Adopt the shared auth service")
	d2 := h.decision(t, "Build the shared auth service")
	d3 := h.decision(t, "Staff the platform team")

	_, err := h.CreateDependency(ctx, lead, d1.ID, d2.ID)
	require.NoError(t, err)
	_, err = h.CreateDependency(ctx, lead, d2.ID, d3.ID)
	require.NoError(t, err)

	_, err = h.CreateDependency(ctx, lead, d3.ID, d1.ID)
	require.ErrorIs(t, err, ErrCycle)
	var cycle *storage.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, d3.ID, cycle.SourceID)
	assert.Equal(t, d1.ID, cycle.TargetID)

	_, err = h.CreateDependency(ctx, lead, d1.ID, d1.ID)
	assert.ErrorIs(t, err, ErrCycle)

	deps, err := h.ListDependencies(ctx, d3.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, d2.ID, deps[0].SourceID)

	rels, err := h.RelationHistory(ctx, d1.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1, "a rejected edge writes no event")
	assert.Equal(t, types.RelationDependsOn, rels[0].Relation.Kind)
	assert.Equal(t, d2.ID, rels[0].Relation.RelatedID)

	rels, err = h.RelationHistory(ctx, d2.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, types.RelationDependsOn, rels[0].Relation.Kind)
	assert.Equal(t, d3.ID, rels[0].Relation.RelatedID)
	assert.Equal(t, types.RelationBlocks, rels[1].Relation.Kind)
	assert.Equal(t, d1.ID, rels[1].Relation.RelatedID)

	require.NoError(t, h.RemoveDependency(ctx, lead, d1.ID, d2.ID))
	rels, err = h.RelationHistory(ctx, d1.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.False(t, rels[0].Linked, "newest first")
	assert.True(t, rels[1].Linked)

	// With d1 -> d2 gone the reverse edge no longer closes a cycle.
	_, err = h.CreateDependency(ctx, lead, d3.ID, d1.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, h.RemoveDependency(ctx, lead, d1.ID, d2.ID), ErrNotFound)
	h.requireReplay(t, d1.ID, d2.ID, d3.ID)
}

func TestRetiredDecisionsLeaveTheGraph(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d1 := h.decision(t, "Support IE11")
	d2 := h.decision(t, "Use CSS grid")

	_, err := h.RetireDecision(ctx, member, d1.ID, "browsers moved on")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.RetireDecision(ctx, lead, d1.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	retired, err := h.RetireDecision(ctx, lead, d1.ID, "browsers moved on")
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleRetired, retired.Lifecycle)
	assert.Equal(t, 2, retired.Version)

	_, err = h.CreateDependency(ctx, lead, d2.ID, d1.ID)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.RetireDecision(ctx, lead, d1.ID, "again")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.MarkDecisionReviewed(ctx, lead, d1.ID)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.UpdateDecision(ctx, lead, d1.ID, types.DecisionPatch{Title: ptr("Support IE")}, "revive")
	assert.ErrorIs(t, err, ErrValidation)
	h.requireReplay(t, d1.ID)
}

func TestDeleteAssumptionInUse(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Outsource support")
	a := h.universal(t, "Vendors know the product", d.ID)

	err := h.DeleteAssumption(ctx, lead, a.ID, false)
	require.ErrorIs(t, err, ErrInUse)
	var inUse *storage.InUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, []string{d.ID}, inUse.ReferencedBy)

	require.NoError(t, h.DeleteAssumption(ctx, lead, a.ID, true))
	_, err = h.GetAssumption(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rels, err := h.RelationHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.False(t, rels[0].Linked, "the unlink is newest")
	assert.Equal(t, a.ID, rels[0].Relation.RelatedID)
	assert.True(t, rels[1].Linked)
	h.requireReplay(t, d.ID)
}

func TestDecisionSpecificAssumptions(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d1 := h.decision(t, "Price at $10")
	d2 := h.decision(t, "Price at $12")

	a, err := h.CreateAssumption(ctx, member, "Competitors charge $15", types.ScopeDecisionSpecific, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, d1.ID, a.OwnerDecisionID)

	assert.ErrorIs(t, h.LinkAssumption(ctx, lead, d2.ID, a.ID, "same market"), ErrValidation)
	assert.ErrorIs(t, h.UnlinkAssumption(ctx, lead, d1.ID, a.ID, "moving it"), ErrValidation)
	assert.ErrorIs(t, h.UnlinkAssumption(ctx, lead, d2.ID, a.ID, ""), ErrValidation)
}

func TestPrioritizeSendsLoserToReview(t *testing.T) {
	h := setupEngine(t, noDetectOnWrite)
	ctx := context.Background()
	x := h.decision(t, "Standardize on Go")
	y := h.decision(t, "Standardize on Rust")
	h.classifier.set(x.Title, y.Title, types.ConflictMutuallyExclusive, 0.9)
	_, err := h.DetectConflicts(ctx)
	require.NoError(t, err)
	c := h.openConflicts(t)[0]

	_, err = h.ResolveDecisionConflict(ctx, lead, c.ID, types.ActionValidateA, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.ResolveDecisionConflict(ctx, lead, c.ID, types.ActionPrioritizeA, "hiring pool")
	require.NoError(t, err)

	winner, loser := h.get(t, c.EntityA), h.get(t, c.EntityB)
	assert.Equal(t, types.LifecycleStable, winner.Lifecycle)
	assert.False(t, winner.GovernanceLocked)
	assert.Equal(t, types.LifecycleUnderReview, loser.Lifecycle)
	assert.True(t, loser.GovernanceLocked)
	assert.Equal(t, 100, loser.HealthSignal)

	// The override holds through a sweep while nothing moves.
	_, err = h.SweepHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleUnderReview, h.get(t, loser.ID).Lifecycle)

	reviewed, err := h.MarkDecisionReviewed(ctx, lead, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleStable, reviewed.Lifecycle)
	assert.True(t, reviewed.GovernanceLocked, "review does not unlock")

	for _, id := range []string{winner.ID, loser.ID} {
		evs, err := h.Timeline(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, eventTypes(evs), types.EventDecisionConflictResolved)
	}
	h.requireReplay(t, winner.ID, loser.ID)
}

func TestMergeAndRetireBoth(t *testing.T) {
	h := setupEngine(t, noDetectOnWrite)
	ctx := context.Background()
	a := h.decision(t, "Weekly releases")
	b := h.decision(t, "Monthly releases")
	c := h.decision(t, "Quarterly releases")
	h.classifier.set(a.Title, b.Title, types.ConflictContradictory, 0.8)
	h.classifier.set(a.Title, c.Title, types.ConflictContradictory, 0.8)
	_, err := h.DetectConflicts(ctx)
	require.NoError(t, err)

	byPair := func(other string) *types.Conflict {
		cs, err := h.ListConflicts(ctx, types.ConflictFilter{OpenOnly: true, EntityID: other})
		require.NoError(t, err)
		require.Len(t, cs, 1)
		return cs[0]
	}

	_, err = h.ResolveDecisionConflict(ctx, lead, byPair(b.ID).ID, types.ActionMerge, "one cadence")
	require.NoError(t, err)
	for _, id := range []string{a.ID, b.ID} {
		got := h.get(t, id)
		assert.Equal(t, types.LifecycleUnderReview, got.Lifecycle)
		assert.True(t, got.GovernanceLocked)
	}

	_, err = h.ResolveDecisionConflict(ctx, lead, byPair(c.ID).ID, types.ActionRetireBoth, "")
	require.NoError(t, err)
	for _, id := range []string{a.ID, c.ID} {
		assert.Equal(t, types.LifecycleRetired, h.get(t, id).Lifecycle)
	}
	h.requireReplay(t, a.ID, b.ID, c.ID)

	res, err := h.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.PairsCompared, "only one live decision is left")
}

func TestConstraintViolationCapsHealth(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Store EU data in us-east-1")
	ok := h.decision(t, "Store EU data in eu-west-1")
	h.evaluator.set(d.ID, true)

	_, err := h.CreateConstraint(ctx, lead, NewConstraint{Name: "GDPR residency", Type: types.ConstraintLegal})
	require.NoError(t, err)

	got := h.get(t, d.ID)
	assert.Equal(t, 40, got.HealthSignal)
	assert.Equal(t, types.LifecycleAtRisk, got.Lifecycle)
	assert.Equal(t, 100, h.get(t, ok.ID).HealthSignal)

	hh, err := h.HealthHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, hh, 1)
	assert.Equal(t, types.TriggerConstraintViolation, hh[0].TriggeredBy)

	// A review cannot lift health above the cap while the violation stands.
	reviewed, err := h.MarkDecisionReviewed(ctx, lead, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, reviewed.HealthSignal)
	require.NotNil(t, reviewed.LastReviewedAt)
	hh, err = h.HealthHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, hh, 2, "a review is always logged")
	assert.Equal(t, types.TriggerManualReview, hh[0].TriggeredBy)
	assert.Equal(t, types.TriggerConstraintViolation, hh[1].TriggeredBy)

	cs, err := h.ListConstraints(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.True(t, cs[0].IsImmutable)
	assert.ErrorIs(t, h.DeleteConstraint(ctx, lead, cs[0].ID, false), ErrInUse)
	require.NoError(t, h.DeleteConstraint(ctx, lead, cs[0].ID, true))

	// Without assumptions the signal stays where it was until reviewed.
	assert.Equal(t, 40, h.get(t, d.ID).HealthSignal)
	reviewed, err = h.MarkDecisionReviewed(ctx, lead, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, reviewed.HealthSignal)
	assert.Equal(t, types.LifecycleStable, reviewed.Lifecycle)
	h.requireReplay(t, d.ID, ok.ID)
}

func TestHistoryViews(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Use feature flags")
	a := h.universal(t, "Flags get cleaned up", d.ID)
	_, err := h.UpdateDecision(ctx, lead, d.ID, types.DecisionPatch{Category: ptr("engineering")}, "tagging")
	require.NoError(t, err)
	h.setStatus(t, a.ID, types.StatusShaky)

	evs, err := h.Timeline(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.EventType{
		types.EventHealthEvaluated,
		types.EventFieldUpdated,
		types.EventRelationLinked,
		types.EventCreated,
	}, eventTypes(evs))
	for i := 1; i < len(evs); i++ {
		assert.Less(t, evs[i].Seq, evs[i-1].Seq, "timeline is newest first")
	}

	versions, err := h.Versions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Number)
	assert.Equal(t, 2, versions[1].Number)
	assert.Equal(t, "engineering", versions[1].Snapshot.Category)

	state, err := h.Replay(ctx, d.ID)
	require.NoError(t, err)
	want := history.StateOf(h.get(t, d.ID))
	assert.Empty(t, want.Diff(*state))
	assert.Equal(t, 50, state.HealthSignal)
	assert.Equal(t, 2, state.Version)
}

func TestHistoryViewsNewestFirst(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Ship weekly")
	a := h.universal(t, "QA keeps up", d.ID)
	b := h.universal(t, "Customers want it", d.ID)
	h.setStatus(t, a.ID, types.StatusShaky)
	h.setStatus(t, a.ID, types.StatusBroken)

	evs, err := h.Timeline(ctx, d.ID)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, types.EventHealthEvaluated, evs[0].Type())
	assert.Equal(t, types.EventCreated, evs[len(evs)-1].Type())

	rels, err := h.RelationHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, b.ID, rels[0].Relation.RelatedID)
	assert.Equal(t, a.ID, rels[1].Relation.RelatedID)

	hh, err := h.HealthHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, hh, 2)
	assert.Equal(t, 50, hh[0].NewHealth)
	assert.Equal(t, 75, hh[1].NewHealth)
	assert.Equal(t, -25, hh[0].HealthChange)
}
