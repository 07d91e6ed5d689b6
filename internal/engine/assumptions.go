package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// CreateAssumption records a new VALID assumption. A decision-specific
// assumption must name the decision it belongs to and is linked to it; a
// universal one is linked only when linkTo is set.
func (e *Engine) CreateAssumption(ctx context.Context, actor Actor, description string, scope types.AssumptionScope, linkTo string) (_ *types.Assumption, err error) {
	ctx, done := e.begin(ctx, "CreateAssumption")
	defer func() { done(err) }()

	now := e.clock()
	a := &types.Assumption{
		ID:          idgen.New(idgen.PrefixAssumption),
		Description: strings.TrimSpace(description),
		Status:      types.StatusValid,
		Scope:       scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if scope == types.ScopeDecisionSpecific {
		if linkTo == "" {
			return nil, validationf("a decision-specific assumption needs the decision it belongs to")
		}
		a.OwnerDecisionID = linkTo
	}
	if err := a.Validate(); err != nil {
		return nil, validationf("%v", err)
	}

	unlock, err := e.locks.Lock(ctx, linkTo)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		var d *types.Decision
		if linkTo != "" {
			var err error
			if d, err = e.linkableDecision(ctx, tx, actor, linkTo); err != nil {
				return err
			}
		}
		if err := tx.CreateAssumption(ctx, a); err != nil {
			return err
		}
		if d != nil {
			if err := e.linkTx(ctx, tx, d.ID, a.ID, "created", actor.String()); err != nil {
				return err
			}
			if _, err := e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor.String()}, &fx); err != nil {
				return err
			}
		}
		fx.detectAssumption(a.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, &fx)
	return a, nil
}

// linkableDecision loads a decision whose assumption links are about to
// change and applies the lock gate: while governance-locked, only a lead may
// relink it.
func (e *Engine) linkableDecision(ctx context.Context, r storage.Reader, actor Actor, id string) (*types.Decision, error) {
	d, err := r.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsRetired() {
		return nil, validationf("decision %s is retired", id)
	}
	if d.GovernanceLocked && !actor.Lead {
		return nil, validationf("decision %s is governance-locked; %v", id, errLeadRequired)
	}
	return d, nil
}

// GetAssumption returns an assumption.
func (e *Engine) GetAssumption(ctx context.Context, id string) (*types.Assumption, error) {
	return e.store.GetAssumption(ctx, id)
}

// ListAssumptions returns assumptions matching filter.
func (e *Engine) ListAssumptions(ctx context.Context, filter types.AssumptionFilter) ([]*types.Assumption, error) {
	return e.store.ListAssumptions(ctx, filter)
}

func (e *Engine) linkedDecisionIDs(id string) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		ds, err := e.store.GetLinkedDecisions(ctx, id)
		if err != nil {
			return nil, err
		}
		return decisionIDs(ds), nil
	}
}

// UpdateAssumption edits the description or status of an assumption. A
// status change re-derives health for every decision linking it; a new
// description makes it a detection candidate again.
func (e *Engine) UpdateAssumption(ctx context.Context, actor Actor, id string, patch types.AssumptionPatch) (_ *types.Assumption, err error) {
	ctx, done := e.begin(ctx, "UpdateAssumption", attribute.String("tenet.assumption", id))
	defer func() { done(err) }()

	if patch.IsEmpty() {
		return nil, validationf("no changes given")
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, validationf("invalid status %q", *patch.Status)
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return nil, validationf("description cannot be empty")
	}

	unlock, err := e.lockStable(ctx, e.linkedDecisionIDs(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Assumption
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		a, err := tx.GetAssumption(ctx, id)
		if err != nil {
			return err
		}
		out = a
		statusChanged := patch.Status != nil && *patch.Status != a.Status
		textChanged := patch.Description != nil && strings.TrimSpace(*patch.Description) != a.Description
		if !statusChanged && !textChanged {
			return nil
		}
		if statusChanged {
			a.Status = *patch.Status
		}
		if textChanged {
			a.Description = strings.TrimSpace(*patch.Description)
			fx.detectAssumption(a.ID)
		}
		a.UpdatedAt = e.clock()
		if err := tx.UpdateAssumption(ctx, a); err != nil {
			return err
		}
		if !statusChanged {
			return nil
		}
		linked, err := tx.GetLinkedDecisions(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != types.StatusBroken {
			fx.detectAssumption(a.ID)
		}
		return e.evaluateAllTx(ctx, tx, decisionIDs(linked), evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor.String()}, &fx)
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, &fx)
	return out, nil
}

// DeleteAssumption removes an assumption. While a non-retired decision links
// it the call fails with ErrInUse, unless unlinkFirst is set: then every
// link is dropped with a relation_unlinked event and health is re-derived.
func (e *Engine) DeleteAssumption(ctx context.Context, actor Actor, id string, unlinkFirst bool) (err error) {
	ctx, done := e.begin(ctx, "DeleteAssumption", attribute.String("tenet.assumption", id))
	defer func() { done(err) }()

	unlock, err := e.lockStable(ctx, e.linkedDecisionIDs(id))
	if err != nil {
		return err
	}
	defer unlock()

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		linked, err := tx.GetLinkedDecisions(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssumption(ctx, id, unlinkFirst); err != nil {
			return err
		}
		for _, d := range linked {
			if err := tx.AppendEvent(ctx, &types.VersionEvent{
				DecisionID: d.ID,
				Actor:      actor.String(),
				Payload: types.RelationUnlinked{Relation: types.Relation{
					Kind: types.RelationAssumption, RelatedID: id, Reason: "assumption deleted",
				}},
			}); err != nil {
				return err
			}
			if _, err := e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor.String()}, &fx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, &fx)
	return nil
}

// LinkAssumption links an assumption to a decision and re-derives its
// health.
func (e *Engine) LinkAssumption(ctx context.Context, actor Actor, decisionID, assumptionID, reason string) (err error) {
	ctx, done := e.begin(ctx, "LinkAssumption",
		attribute.String("tenet.decision", decisionID), attribute.String("tenet.assumption", assumptionID))
	defer func() { done(err) }()

	unlock, err := e.locks.Lock(ctx, decisionID)
	if err != nil {
		return err
	}
	defer unlock()

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		d, err := e.linkableDecision(ctx, tx, actor, decisionID)
		if err != nil {
			return err
		}
		if err := e.linkTx(ctx, tx, decisionID, assumptionID, reason, actor.String()); err != nil {
			return err
		}
		fx.detectAssumption(assumptionID)
		_, err = e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor.String()}, &fx)
		return err
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, &fx)
	return nil
}

// UnlinkAssumption removes a link. A reason is required.
func (e *Engine) UnlinkAssumption(ctx context.Context, actor Actor, decisionID, assumptionID, reason string) (err error) {
	ctx, done := e.begin(ctx, "UnlinkAssumption",
		attribute.String("tenet.decision", decisionID), attribute.String("tenet.assumption", assumptionID))
	defer func() { done(err) }()

	if strings.TrimSpace(reason) == "" {
		return validationf("a reason is required to unlink an assumption")
	}

	unlock, err := e.locks.Lock(ctx, decisionID)
	if err != nil {
		return err
	}
	defer unlock()

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		d, err := e.linkableDecision(ctx, tx, actor, decisionID)
		if err != nil {
			return err
		}
		if err := e.unlinkTx(ctx, tx, decisionID, assumptionID, reason, actor.String()); err != nil {
			return err
		}
		_, err = e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor.String()}, &fx)
		return err
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, &fx)
	return nil
}
