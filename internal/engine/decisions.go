package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// NewDecision is the input of CreateDecision.
type NewDecision struct {
	Title       string
	Description string
	Category    string
	Parameters  map[string]string
}

// UpdateResult is the outcome of UpdateDecision: the edited decision for a
// lead, the filed edit request for anyone else.
type UpdateResult struct {
	Decision *types.Decision    `json:"decision,omitempty"`
	Request  *types.EditRequest `json:"edit_request,omitempty"`
}

// CreateDecision submits a new decision. It starts STABLE at full health,
// version 1.
func (e *Engine) CreateDecision(ctx context.Context, actor Actor, in NewDecision) (_ *types.Decision, err error) {
	ctx, done := e.begin(ctx, "CreateDecision")
	defer func() { done(err) }()

	now := e.clock()
	d := &types.Decision{
		ID:           idgen.New(idgen.PrefixDecision),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Category:     in.Category,
		Parameters:   in.Parameters,
		Lifecycle:    types.LifecycleStable,
		HealthSignal: types.MaxHealth,
		Version:      1,
		CreatedBy:    actor.String(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Validate(); err != nil {
		return nil, validationf("%v", err)
	}

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		if err := tx.CreateDecision(ctx, d); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &types.VersionEvent{
			DecisionID: d.ID,
			Version:    d.Version,
			Actor:      actor.String(),
			Payload:    types.Created{Snapshot: d.Snapshot()},
		}); err != nil {
			return err
		}
		fx.detectDecision(d.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("decision created", "id", d.ID, "actor", actor.String())
	e.afterCommit(ctx, &fx)
	return d, nil
}

// GetDecision returns a decision.
func (e *Engine) GetDecision(ctx context.Context, id string) (*types.Decision, error) {
	return e.store.GetDecision(ctx, id)
}

// ListDecisions returns decisions matching filter.
func (e *Engine) ListDecisions(ctx context.Context, filter types.DecisionFilter) ([]*types.Decision, error) {
	return e.store.ListDecisions(ctx, filter)
}

// UpdateDecision edits a decision. A lead's patch is applied directly and
// logged as field_updated, whatever the lock state. Anyone else files an
// edit request instead and the decision is left untouched.
func (e *Engine) UpdateDecision(ctx context.Context, actor Actor, id string, patch types.DecisionPatch, justification string) (_ *UpdateResult, err error) {
	if !actor.Lead {
		r, err := e.RequestEdit(ctx, actor, id, justification, patch)
		if err != nil {
			return nil, err
		}
		return &UpdateResult{Request: r}, nil
	}

	ctx, done := e.begin(ctx, "UpdateDecision", attribute.String("tenet.decision", id))
	defer func() { done(err) }()

	if patch.IsEmpty() {
		return nil, validationf("no changes given")
	}
	if err := patch.Validate(); err != nil {
		return nil, validationf("%v", err)
	}

	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Decision
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		d, err := tx.GetDecision(ctx, id)
		if err != nil {
			return err
		}
		if d.IsRetired() {
			return validationf("decision %s is retired", id)
		}
		_, err = e.applyPatchTx(ctx, tx, d, patch, actor.String(), false, func(a applied) types.Payload {
			return types.FieldUpdated{
				Changes:       a.changes,
				Justification: justification,
				Snapshot:      d.Snapshot(),
			}
		}, &fx)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, &fx)
	return &UpdateResult{Decision: out}, nil
}

// applied is what applyPatchTx changed.
type applied struct {
	changes  []types.FieldChange
	linked   []string
	unlinked []string
}

func (a applied) empty() bool {
	return len(a.changes) == 0 && len(a.linked) == 0 && len(a.unlinked) == 0
}

// applyPatchTx applies patch to d the way a direct edit does: fields first,
// then the assumption link sets. If anything changed, the version is bumped
// and the event built by payload is appended ahead of the relation events;
// health is re-derived when links moved. A patch that changes nothing
// writes no event unless always is set, and then without a version.
func (e *Engine) applyPatchTx(ctx context.Context, tx storage.Transaction, d *types.Decision, patch types.DecisionPatch, actor string, always bool, payload func(applied) types.Payload, fx *effects) (applied, error) {
	if err := checkLinkSets(ctx, tx, d.ID, patch); err != nil {
		return applied{}, err
	}

	oldHash := d.ContentHash()
	a := applied{
		changes:  patch.Apply(d),
		linked:   patch.LinkAssumptions,
		unlinked: patch.UnlinkAssumptions,
	}

	ev := &types.VersionEvent{DecisionID: d.ID, Actor: actor}
	if !a.empty() {
		d.Version++
		ev.Version = d.Version
		if err := tx.UpdateDecision(ctx, d); err != nil {
			return a, err
		}
	}
	if !a.empty() || always {
		ev.Payload = payload(a)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return a, err
		}
	}

	for _, id := range a.linked {
		if err := e.linkTx(ctx, tx, d.ID, id, "", actor); err != nil {
			return a, err
		}
	}
	for _, id := range a.unlinked {
		if err := e.unlinkTx(ctx, tx, d.ID, id, "", actor); err != nil {
			return a, err
		}
	}
	if len(a.linked)+len(a.unlinked) > 0 {
		if _, err := e.evaluateTx(ctx, tx, d, evalOpts{trigger: types.TriggerAssumptionStatusChange, actor: actor}, fx); err != nil {
			return a, err
		}
		for _, id := range a.linked {
			fx.detectAssumption(id)
		}
	}
	if d.ContentHash() != oldHash {
		fx.detectDecision(d.ID)
	}
	return a, nil
}

// checkLinkSets validates the link part of a patch against the store: every
// assumption must exist, be linkable to the decision and not already be
// linked; every unlink target must be linked.
func checkLinkSets(ctx context.Context, r storage.Reader, decisionID string, patch types.DecisionPatch) error {
	for _, id := range patch.LinkAssumptions {
		a, err := r.GetAssumption(ctx, id)
		if err != nil {
			return err
		}
		if !a.CanLinkTo(decisionID) {
			return validationf("assumption %s is specific to decision %s", id, a.OwnerDecisionID)
		}
		linked, err := r.IsLinked(ctx, decisionID, id)
		if err != nil {
			return err
		}
		if linked {
			return validationf("assumption %s is already linked to %s", id, decisionID)
		}
	}
	for _, id := range patch.UnlinkAssumptions {
		linked, err := r.IsLinked(ctx, decisionID, id)
		if err != nil {
			return err
		}
		if !linked {
			return validationf("assumption %s is not linked to %s", id, decisionID)
		}
	}
	return nil
}

// linkTx links an assumption and records relation_linked on the decision.
func (e *Engine) linkTx(ctx context.Context, tx storage.Transaction, decisionID, assumptionID, reason, actor string) error {
	if err := tx.LinkAssumption(ctx, decisionID, assumptionID); err != nil {
		return linkError(err)
	}
	return tx.AppendEvent(ctx, &types.VersionEvent{
		DecisionID: decisionID,
		Actor:      actor,
		Payload: types.RelationLinked{Relation: types.Relation{
			Kind: types.RelationAssumption, RelatedID: assumptionID, Reason: reason,
		}},
	})
}

// unlinkTx removes a link and records relation_unlinked on the decision. A
// decision-specific assumption cannot be unlinked from its owner; it has to
// be deleted.
func (e *Engine) unlinkTx(ctx context.Context, tx storage.Transaction, decisionID, assumptionID, reason, actor string) error {
	a, err := tx.GetAssumption(ctx, assumptionID)
	if err != nil {
		return err
	}
	if a.Scope == types.ScopeDecisionSpecific {
		return validationf("assumption %s is specific to %s; delete it instead of unlinking", assumptionID, decisionID)
	}
	if err := tx.UnlinkAssumption(ctx, decisionID, assumptionID); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, &types.VersionEvent{
		DecisionID: decisionID,
		Actor:      actor,
		Payload: types.RelationUnlinked{Relation: types.Relation{
			Kind: types.RelationAssumption, RelatedID: assumptionID, Reason: reason,
		}},
	})
}

// RetireDecision moves a decision to its terminal RETIRED state. Lead only.
// The record stays; the evaluator and the detector skip it from now on.
func (e *Engine) RetireDecision(ctx context.Context, actor Actor, id, reason string) (_ *types.Decision, err error) {
	ctx, done := e.begin(ctx, "RetireDecision", attribute.String("tenet.decision", id))
	defer func() { done(err) }()

	if err := requireLead(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, validationf("a reason is required to retire a decision")
	}

	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Decision
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		d, err := tx.GetDecision(ctx, id)
		if err != nil {
			return err
		}
		if d.IsRetired() {
			return validationf("decision %s is already retired", id)
		}
		old := d.Lifecycle
		d.Lifecycle = types.LifecycleRetired
		d.Version++
		if err := tx.UpdateDecision(ctx, d); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &types.VersionEvent{
			DecisionID: d.ID,
			Version:    d.Version,
			Actor:      actor.String(),
			Payload: types.FieldUpdated{
				Changes:       []types.FieldChange{{Field: "lifecycle", Old: string(old), New: string(types.LifecycleRetired)}},
				Justification: reason,
				Snapshot:      d.Snapshot(),
			},
		}); err != nil {
			return err
		}
		fx.notify(lifecycleNote(d.ID, old, types.LifecycleRetired))
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifier.DismissReview(id)
	e.afterCommit(ctx, &fx)
	return out, nil
}
