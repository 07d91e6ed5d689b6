package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/tenet/internal/health"
	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

type evalOpts struct {
	trigger types.Trigger
	actor   string

	// restore and force are set by a manual review: restore full health
	// when no assumptions are linked, and record the evaluation even when
	// nothing moved.
	restore bool
	force   bool
}

// evaluateTx re-derives health and lifecycle of d inside tx, persists d and
// appends a health_evaluated event when anything changed. d must have been
// read through tx. Retired decisions are left alone.
func (e *Engine) evaluateTx(ctx context.Context, tx storage.Transaction, d *types.Decision, o evalOpts, fx *effects) (health.Result, error) {
	if d.IsRetired() {
		return health.Result{
			OldHealth: d.HealthSignal, NewHealth: d.HealthSignal,
			OldLifecycle: d.Lifecycle, NewLifecycle: d.Lifecycle,
		}, nil
	}

	linked, err := tx.GetLinkedAssumptions(ctx, d.ID)
	if err != nil {
		return health.Result{}, err
	}
	statuses := make([]types.AssumptionStatus, len(linked))
	for i, a := range linked {
		statuses[i] = a.Status
	}
	constraints, err := tx.ListConstraints(ctx)
	if err != nil {
		return health.Result{}, err
	}
	violated, reasons, err := e.evaluator.Violates(ctx, d, constraints)
	if err != nil {
		return health.Result{}, fmt.Errorf("evaluate constraints for %s: %w", d.ID, err)
	}

	res := health.Evaluate(health.Input{
		Health:    d.HealthSignal,
		Lifecycle: d.Lifecycle,
		Statuses:  statuses,
		Violated:  violated,
		Restore:   o.restore,
	})
	outcome := "unchanged"
	if res.Changed() {
		outcome = "changed"
	}
	e.metrics.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenet.trigger", string(o.trigger)),
		attribute.String("tenet.outcome", outcome),
	))
	if !res.Changed() && !o.force {
		return res, nil
	}
	if violated {
		e.logger.Debug("constraint violation caps health", "decision", d.ID, "reasons", reasons)
	}

	d.HealthSignal = res.NewHealth
	d.Lifecycle = res.NewLifecycle
	if err := tx.UpdateDecision(ctx, d); err != nil {
		return res, err
	}
	if err := tx.AppendEvent(ctx, &types.VersionEvent{
		DecisionID: d.ID,
		Actor:      o.actor,
		Payload: types.HealthEvaluated{
			OldHealth:    res.OldHealth,
			NewHealth:    res.NewHealth,
			OldLifecycle: res.OldLifecycle,
			NewLifecycle: res.NewLifecycle,
			TriggeredBy:  o.trigger,
		},
	}); err != nil {
		return res, err
	}

	if res.Degraded() {
		sev := notification.SeverityWarning
		if res.NewLifecycle == types.LifecycleInvalidated {
			sev = notification.SeverityCritical
		}
		fx.notify(notification.Notification{
			Type:       notification.TypeHealthDegraded,
			Severity:   sev,
			DecisionID: d.ID,
			Message:    fmt.Sprintf("health %d -> %d (%s)", res.OldHealth, res.NewHealth, o.trigger),
		})
	}
	if res.OldLifecycle != res.NewLifecycle {
		fx.notify(lifecycleNote(d.ID, res.OldLifecycle, res.NewLifecycle))
	}
	return res, nil
}

func lifecycleNote(decisionID string, from, to types.Lifecycle) notification.Notification {
	return notification.Notification{
		Type:       notification.TypeLifecycleChanged,
		Severity:   notification.SeverityInfo,
		DecisionID: decisionID,
		Message:    fmt.Sprintf("lifecycle %s -> %s", from, to),
	}
}

// evaluateAllTx re-evaluates every decision in ids through tx.
func (e *Engine) evaluateAllTx(ctx context.Context, tx storage.Transaction, ids []string, o evalOpts, fx *effects) error {
	for _, id := range ids {
		d, err := tx.GetDecision(ctx, id)
		if err != nil {
			return err
		}
		if _, err := e.evaluateTx(ctx, tx, d, o, fx); err != nil {
			return err
		}
	}
	return nil
}

// reevaluate runs one evaluation of a decision in its own transaction.
func (e *Engine) reevaluate(ctx context.Context, id string, o evalOpts) (health.Result, error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return health.Result{}, err
	}
	defer unlock()

	var (
		res health.Result
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		d, err := tx.GetDecision(ctx, id)
		if err != nil {
			return err
		}
		res, err = e.evaluateTx(ctx, tx, d, o, &fx)
		return err
	})
	if err != nil {
		return res, err
	}
	e.afterCommit(ctx, &fx)
	return res, nil
}

// MarkDecisionReviewed records a manual review: last_reviewed_at is set and
// health is re-derived, restored to full when no assumptions are linked. A
// constraint violation still caps it. The review is always logged as a
// health_evaluated event, and any outstanding needs_review reminder is
// dismissed.
func (e *Engine) MarkDecisionReviewed(ctx context.Context, actor Actor, id string) (_ *types.Decision, err error) {
	ctx, done := e.begin(ctx, "MarkDecisionReviewed", attribute.String("tenet.decision", id))
	defer func() { done(err) }()

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
		now := e.clock()
		d.LastReviewedAt = &now
		if _, err := e.evaluateTx(ctx, tx, d, evalOpts{
			trigger: types.TriggerManualReview,
			actor:   actor.String(),
			restore: true,
			force:   true,
		}, &fx); err != nil {
			return err
		}
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
