package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/types"
)

// SweepResult summarizes a health sweep.
type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Changed   int `json:"changed"`
	Reminded  int `json:"reminded"`
	Failed    int `json:"failed"`
}

// SweepHealth re-evaluates every live decision, one transaction each, and
// sends a needs_review reminder for decisions not reviewed within
// StaleAfter. Changes found here come from the constraint rules (assumption
// changes are evaluated as they happen) and are logged as
// constraint_violation. A failing decision is logged and counted; the sweep
// goes on.
func (e *Engine) SweepHealth(ctx context.Context) (_ *SweepResult, err error) {
	ctx, done := e.begin(ctx, "SweepHealth")
	defer func() { done(err) }()

	res, err := e.evaluateDecisions(ctx, evalOpts{trigger: types.TriggerConstraintViolation, actor: "system:sweep"}, e.remindIfStale)
	if err != nil {
		return nil, err
	}
	e.logger.Info("health sweep finished",
		"evaluated", res.Evaluated, "changed", res.Changed, "reminded", res.Reminded, "failed", res.Failed)
	return res, nil
}

// SweepConflicts re-scans the whole organization for conflicts.
func (e *Engine) SweepConflicts(ctx context.Context) (*DetectResult, error) {
	return e.DetectConflicts(ctx)
}

// evaluateDecisions re-evaluates every non-retired decision with bounded
// concurrency. visit, when set, runs for each decision as listed and
// reports whether it sent a reminder.
func (e *Engine) evaluateDecisions(ctx context.Context, o evalOpts, visit func(context.Context, *types.Decision) bool) (*SweepResult, error) {
	decisions, err := e.store.ListDecisions(ctx, types.DecisionFilter{})
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		res SweepResult
	)
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	for _, d := range decisions {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r, err := e.reevaluate(gctx, d.ID, o)
			reminded := visit != nil && visit(gctx, d)

			mu.Lock()
			defer mu.Unlock()
			if reminded {
				res.Reminded++
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res.Failed++
				e.logger.Warn("health evaluation failed", "decision", d.ID, "error", err)
				return nil
			}
			res.Evaluated++
			if r.Changed() {
				res.Changed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &res, nil
}

// remindIfStale sends a needs_review reminder for a decision last reviewed
// (or created) more than StaleAfter ago. The dispatcher sends it once until
// the decision is reviewed.
func (e *Engine) remindIfStale(ctx context.Context, d *types.Decision) bool {
	if e.cfg.StaleAfter <= 0 || d.IsRetired() {
		return false
	}
	last := d.CreatedAt
	if d.LastReviewedAt != nil {
		last = *d.LastReviewedAt
	}
	if e.clock().Sub(last) < e.cfg.StaleAfter {
		return false
	}
	return e.notifier.RemindReview(ctx, notification.Notification{
		DecisionID: d.ID,
		OrgID:      e.OrgID(),
		Message:    fmt.Sprintf("not reviewed since %s", last.Format(time.DateOnly)),
	})
}

// SweepIntervals sets how often RunSweeps runs each sweep. Zero disables
// that sweep.
type SweepIntervals struct {
	Health    time.Duration
	Conflicts time.Duration
}

// RunSweeps runs the health and conflict sweeps once, then on their
// intervals until ctx is done. Sweep failures are logged, never returned.
func (e *Engine) RunSweeps(ctx context.Context, iv SweepIntervals) error {
	g, ctx := errgroup.WithContext(ctx)
	if iv.Health > 0 {
		g.Go(func() error {
			return e.sweepLoop(ctx, "health", iv.Health, func(ctx context.Context) error {
				_, err := e.SweepHealth(ctx)
				return err
			})
		})
	}
	if iv.Conflicts > 0 {
		g.Go(func() error {
			return e.sweepLoop(ctx, "conflicts", iv.Conflicts, func(ctx context.Context) error {
				_, err := e.SweepConflicts(ctx)
				return err
			})
		})
	}
	return g.Wait()
}

func (e *Engine) sweepLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Warn("sweep failed", "sweep", name, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
