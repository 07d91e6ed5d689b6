package engine

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// GetConflict returns a conflict.
func (e *Engine) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	return e.store.GetConflict(ctx, id)
}

// ListConflicts returns conflicts matching filter.
func (e *Engine) ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.Conflict, error) {
	return e.store.ListConflicts(ctx, filter)
}

// openConflict loads a conflict that is about to be closed.
func openConflict(ctx context.Context, r storage.Reader, id string, kind types.ConflictKind) (*types.Conflict, error) {
	c, err := r.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, validationf("conflict %s is a %s conflict", id, c.Kind)
	}
	if !c.IsOpen() {
		return nil, validationf("conflict %s was already resolved (%s)", id, c.Resolution)
	}
	return c, nil
}

func (e *Engine) closeConflict(c *types.Conflict, actor Actor, action types.ResolutionAction, notes string) {
	now := e.clock()
	c.ResolvedAt = &now
	c.Resolution = action
	c.ResolutionNotes = notes
	c.ResolvedBy = actor.String()
}

// assumptionStatuses is what an assumption-conflict action does to the
// statuses of A and B. Empty means unchanged.
func assumptionStatuses(action types.ResolutionAction) (a, b types.AssumptionStatus) {
	switch action {
	case types.ActionValidateA:
		return types.StatusValid, types.StatusBroken
	case types.ActionValidateB:
		return types.StatusBroken, types.StatusValid
	case types.ActionMerge, types.ActionDeprecateBoth:
		return types.StatusBroken, types.StatusBroken
	}
	return "", ""
}

// ResolveAssumptionConflict closes an open assumption conflict with one
// action, flips assumption statuses accordingly, writes an
// assumption_conflict_resolved event on every decision linking either
// assumption and re-derives their health, all in one transaction. Store
// failures roll everything back and come back as ErrResolutionFailed.
//
// MERGE marks both assumptions BROKEN; the replacement assumption is
// expected to have been created by the caller.
func (e *Engine) ResolveAssumptionConflict(ctx context.Context, actor Actor, conflictID string, action types.ResolutionAction, notes string) (_ *types.Conflict, err error) {
	ctx, done := e.begin(ctx, "ResolveAssumptionConflict",
		attribute.String("tenet.conflict", conflictID), attribute.String("tenet.action", string(action)))
	defer func() { done(err) }()

	if !action.ValidFor(types.KindAssumption) {
		return nil, validationf("%q is not an assumption conflict resolution", action)
	}
	c, err := openConflict(ctx, e.store, conflictID, types.KindAssumption)
	if err != nil {
		return nil, err
	}

	affected := func(ctx context.Context) ([]string, error) {
		var ids []string
		for _, id := range []string{c.EntityA, c.EntityB} {
			ds, err := e.store.GetLinkedDecisions(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, d := range ds {
				if !slices.Contains(ids, d.ID) {
					ids = append(ids, d.ID)
				}
			}
		}
		return ids, nil
	}
	unlock, err := e.lockStable(ctx, affected)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Conflict
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		c, err := openConflict(ctx, tx, conflictID, types.KindAssumption)
		if err != nil {
			return err
		}

		var changes []types.StatusChange
		newA, newB := assumptionStatuses(action)
		for _, side := range []struct {
			id     string
			status types.AssumptionStatus
		}{{c.EntityA, newA}, {c.EntityB, newB}} {
			a, err := tx.GetAssumption(ctx, side.id)
			if err != nil {
				return err
			}
			if side.status == "" || side.status == a.Status {
				continue
			}
			changes = append(changes, types.StatusChange{AssumptionID: a.ID, Old: a.Status, New: side.status})
			a.Status = side.status
			a.UpdatedAt = e.clock()
			if err := tx.UpdateAssumption(ctx, a); err != nil {
				return err
			}
		}

		e.closeConflict(c, actor, action, notes)
		if err := tx.UpdateConflict(ctx, c); err != nil {
			return err
		}

		var decisions []*types.Decision
		for _, id := range []string{c.EntityA, c.EntityB} {
			ds, err := tx.GetLinkedDecisions(ctx, id)
			if err != nil {
				return err
			}
			for _, d := range ds {
				if !slices.ContainsFunc(decisions, func(x *types.Decision) bool { return x.ID == d.ID }) {
					decisions = append(decisions, d)
				}
			}
		}
		for _, d := range decisions {
			if err := tx.AppendEvent(ctx, &types.VersionEvent{
				DecisionID: d.ID,
				Actor:      actor.String(),
				Payload: types.AssumptionConflictResolved{
					ConflictID:    c.ID,
					Action:        action,
					Notes:         notes,
					AssumptionA:   c.EntityA,
					AssumptionB:   c.EntityB,
					StatusChanges: changes,
				},
			}); err != nil {
				return err
			}
			if _, err := e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerConflictResolution, actor: actor.String()}, &fx); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, asResolutionFailure(err)
	}
	e.afterCommit(ctx, &fx)
	return out, nil
}

// decisionOverride is what a decision-conflict action does to one side.
type decisionOverride struct {
	lifecycle types.Lifecycle // empty: leave as evaluated
	lock      bool
}

func decisionOverrides(action types.ResolutionAction) (a, b decisionOverride) {
	review := decisionOverride{lifecycle: types.LifecycleUnderReview, lock: true}
	retire := decisionOverride{lifecycle: types.LifecycleRetired}
	switch action {
	case types.ActionPrioritizeA:
		return decisionOverride{}, review
	case types.ActionPrioritizeB:
		return review, decisionOverride{}
	case types.ActionMerge:
		return review, review
	case types.ActionRetireBoth:
		return retire, retire
	}
	return decisionOverride{}, decisionOverride{}
}

// ResolveDecisionConflict closes an open decision conflict. Both decisions
// are re-evaluated first; then the action's override applies: PRIORITIZE_x
// sends the other decision to UNDER_REVIEW and locks it, MERGE does that to
// both, RETIRE_BOTH retires both, KEEP_BOTH changes nothing. Each decision
// gets a decision_conflict_resolved event. Retired decisions are not
// touched.
func (e *Engine) ResolveDecisionConflict(ctx context.Context, actor Actor, conflictID string, action types.ResolutionAction, notes string) (_ *types.Conflict, err error) {
	ctx, done := e.begin(ctx, "ResolveDecisionConflict",
		attribute.String("tenet.conflict", conflictID), attribute.String("tenet.action", string(action)))
	defer func() { done(err) }()

	if !action.ValidFor(types.KindDecision) {
		return nil, validationf("%q is not a decision conflict resolution", action)
	}
	c, err := openConflict(ctx, e.store, conflictID, types.KindDecision)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, c.EntityA, c.EntityB)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Conflict
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		c, err := openConflict(ctx, tx, conflictID, types.KindDecision)
		if err != nil {
			return err
		}
		e.closeConflict(c, actor, action, notes)
		if err := tx.UpdateConflict(ctx, c); err != nil {
			return err
		}

		overA, overB := decisionOverrides(action)
		for _, side := range []struct {
			id   string
			over decisionOverride
		}{{c.EntityA, overA}, {c.EntityB, overB}} {
			d, err := tx.GetDecision(ctx, side.id)
			if err != nil {
				return err
			}
			if _, err := e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerConflictResolution, actor: actor.String()}, &fx); err != nil {
				return err
			}

			ev := types.DecisionConflictResolved{
				ConflictID:   c.ID,
				Action:       action,
				Notes:        notes,
				DecisionA:    c.EntityA,
				DecisionB:    c.EntityB,
				OldLifecycle: d.Lifecycle,
				NewLifecycle: d.Lifecycle,
				OldLocked:    d.GovernanceLocked,
				NewLocked:    d.GovernanceLocked,
			}
			if !d.IsRetired() {
				if side.over.lifecycle != "" {
					ev.NewLifecycle = side.over.lifecycle
				}
				if side.over.lock {
					ev.NewLocked = true
				}
			}
			if ev.NewLifecycle != ev.OldLifecycle || ev.NewLocked != ev.OldLocked {
				d.Lifecycle = ev.NewLifecycle
				d.GovernanceLocked = ev.NewLocked
				if err := tx.UpdateDecision(ctx, d); err != nil {
					return err
				}
			}
			if err := tx.AppendEvent(ctx, &types.VersionEvent{
				DecisionID: d.ID,
				Actor:      actor.String(),
				Payload:    ev,
			}); err != nil {
				return err
			}
			if ev.NewLifecycle != ev.OldLifecycle {
				fx.notify(lifecycleNote(d.ID, ev.OldLifecycle, ev.NewLifecycle))
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, asResolutionFailure(err)
	}
	if action == types.ActionRetireBoth {
		e.notifier.DismissReview(out.EntityA)
		e.notifier.DismissReview(out.EntityB)
	}
	e.afterCommit(ctx, &fx)
	return out, nil
}

// DismissConflict hard-deletes an open conflict as a false positive. The
// pair's fingerprint is remembered so detection does not raise it again
// while both entities are unchanged.
func (e *Engine) DismissConflict(ctx context.Context, actor Actor, conflictID string) (err error) {
	ctx, done := e.begin(ctx, "DismissConflict", attribute.String("tenet.conflict", conflictID))
	defer func() { done(err) }()

	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		c, err := tx.GetConflict(ctx, conflictID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			return validationf("conflict %s was already resolved (%s)", conflictID, c.Resolution)
		}
		if err := tx.DismissPair(ctx, c, actor.String()); err != nil {
			return err
		}
		return tx.DeleteConflict(ctx, c.ID)
	})
}
