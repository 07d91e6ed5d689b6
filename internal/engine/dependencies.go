package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// CreateDependency records that source depends on target. An edge that
// would close a cycle among non-retired decisions fails with a
// *storage.CycleError and leaves the graph unchanged. Both decisions get a
// relation_linked event and the source is re-evaluated.
func (e *Engine) CreateDependency(ctx context.Context, actor Actor, sourceID, targetID string) (_ *types.Dependency, err error) {
	ctx, done := e.begin(ctx, "CreateDependency",
		attribute.String("tenet.source", sourceID), attribute.String("tenet.target", targetID))
	defer func() { done(err) }()

	unlock, err := e.locks.Lock(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dep := &types.Dependency{SourceID: sourceID, TargetID: targetID, CreatedBy: actor.String()}
	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		dep.CreatedAt = e.clock()
		src, err := e.liveDecisionPair(ctx, tx, sourceID, targetID)
		if err != nil {
			return err
		}
		if err := tx.AddDependency(ctx, dep); err != nil {
			return err
		}
		if err := e.dependencyEvents(ctx, tx, dep, actor.String(), true); err != nil {
			return err
		}
		fx.detectDecision(sourceID)
		_, err = e.evaluateTx(ctx, tx, src, evalOpts{trigger: types.TriggerDependencyChange, actor: actor.String()}, &fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, &fx)
	return dep, nil
}

// RemoveDependency deletes the edge source -> target.
func (e *Engine) RemoveDependency(ctx context.Context, actor Actor, sourceID, targetID string) (err error) {
	ctx, done := e.begin(ctx, "RemoveDependency",
		attribute.String("tenet.source", sourceID), attribute.String("tenet.target", targetID))
	defer func() { done(err) }()

	unlock, err := e.locks.Lock(ctx, sourceID, targetID)
	if err != nil {
		return err
	}
	defer unlock()

	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		src, err := tx.GetDecision(ctx, sourceID)
		if err != nil {
			return err
		}
		if err := tx.RemoveDependency(ctx, sourceID, targetID); err != nil {
			return err
		}
		dep := &types.Dependency{SourceID: sourceID, TargetID: targetID}
		if err := e.dependencyEvents(ctx, tx, dep, actor.String(), false); err != nil {
			return err
		}
		_, err = e.evaluateTx(ctx, tx, src, evalOpts{trigger: types.TriggerDependencyChange, actor: actor.String()}, &fx)
		return err
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, &fx)
	return nil
}

// ListDependencies returns the edges touching decisionID, or every edge
// when decisionID is empty.
func (e *Engine) ListDependencies(ctx context.Context, decisionID string) ([]*types.Dependency, error) {
	if decisionID == "" {
		return e.store.ListDependencies(ctx)
	}
	if _, err := e.store.GetDecision(ctx, decisionID); err != nil {
		return nil, err
	}
	return e.store.GetDependencies(ctx, decisionID)
}

// liveDecisionPair loads both ends of a new edge, refusing retired ones, and
// returns the source.
func (e *Engine) liveDecisionPair(ctx context.Context, r storage.Reader, sourceID, targetID string) (*types.Decision, error) {
	var src *types.Decision
	for _, id := range []string{sourceID, targetID} {
		d, err := r.GetDecision(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.IsRetired() {
			return nil, validationf("decision %s is retired", id)
		}
		if id == sourceID {
			src = d
		}
	}
	return src, nil
}

// dependencyEvents writes the relation event on both ends of an edge: the
// source depends on the target, the target blocks the source.
func (e *Engine) dependencyEvents(ctx context.Context, tx storage.Transaction, dep *types.Dependency, actor string, linked bool) error {
	sides := []struct {
		decision string
		rel      types.Relation
	}{
		{dep.SourceID, types.Relation{Kind: types.RelationDependsOn, RelatedID: dep.TargetID}},
		{dep.TargetID, types.Relation{Kind: types.RelationBlocks, RelatedID: dep.SourceID}},
	}
	for _, s := range sides {
		var p types.Payload = types.RelationUnlinked{Relation: s.rel}
		if linked {
			p = types.RelationLinked{Relation: s.rel}
		}
		if err := tx.AppendEvent(ctx, &types.VersionEvent{DecisionID: s.decision, Actor: actor, Payload: p}); err != nil {
			return err
		}
	}
	return nil
}
