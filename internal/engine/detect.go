package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/tenet/internal/classify"
	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// DetectResult summarizes one detection run.
type DetectResult struct {
	ConflictsDetected int `json:"conflicts_detected"`
	ConflictsUpdated  int `json:"conflicts_updated"`
	PairsCompared     int `json:"pairs_compared"`
	ClassifierErrors  int `json:"classifier_errors,omitempty"`
}

func (r *DetectResult) add(o *DetectResult) {
	r.ConflictsDetected += o.ConflictsDetected
	r.ConflictsUpdated += o.ConflictsUpdated
	r.PairsCompared += o.PairsCompared
	r.ClassifierErrors += o.ClassifierErrors
}

// pair is two entities of one kind and the fingerprint of their content at
// read time.
type pair struct {
	kind        types.ConflictKind
	a, b        classify.Entity
	fingerprint string
}

func assumptionPair(x, y *types.Assumption) pair {
	return pair{
		kind:        types.KindAssumption,
		a:           classify.FromAssumption(x),
		b:           classify.FromAssumption(y),
		fingerprint: types.PairFingerprint(x.ID, x.ContentHash(), y.ID, y.ContentHash()),
	}
}

func decisionPair(x, y *types.Decision) pair {
	return pair{
		kind:        types.KindDecision,
		a:           classify.FromDecision(x),
		b:           classify.FromDecision(y),
		fingerprint: types.PairFingerprint(x.ID, x.ContentHash(), y.ID, y.ContentHash()),
	}
}

// DetectConflicts compares every eligible pair of assumptions and every
// eligible pair of decisions in the organization. BROKEN assumptions and
// RETIRED decisions take no part. Running it again over an unchanged corpus
// inserts nothing.
func (e *Engine) DetectConflicts(ctx context.Context) (_ *DetectResult, err error) {
	ctx, done := e.begin(ctx, "DetectConflicts")
	defer func() { done(err) }()

	assumptions, err := e.store.ListAssumptions(ctx, types.AssumptionFilter{})
	if err != nil {
		return nil, err
	}
	assumptions = liveAssumptions(assumptions)
	decisions, err := e.store.ListDecisions(ctx, types.DecisionFilter{})
	if err != nil {
		return nil, err
	}

	var pairs []pair
	for i := range assumptions {
		for j := i + 1; j < len(assumptions); j++ {
			pairs = append(pairs, assumptionPair(assumptions[i], assumptions[j]))
		}
	}
	for i := range decisions {
		for j := i + 1; j < len(decisions); j++ {
			pairs = append(pairs, decisionPair(decisions[i], decisions[j]))
		}
	}

	res, err := e.detect(ctx, pairs)
	if err != nil {
		return nil, err
	}
	e.logger.Info("conflict detection finished",
		"pairs", res.PairsCompared, "detected", res.ConflictsDetected, "updated", res.ConflictsUpdated)
	return res, nil
}

func liveAssumptions(as []*types.Assumption) []*types.Assumption {
	out := as[:0]
	for _, a := range as {
		if a.Status != types.StatusBroken {
			out = append(out, a)
		}
	}
	return out
}

// detectForAssumption compares an assumption with its neighbourhood: the
// assumptions sharing a decision with it and, for a universal one, every
// other universal assumption.
func (e *Engine) detectForAssumption(ctx context.Context, id string) (*DetectResult, error) {
	x, err := e.store.GetAssumption(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &DetectResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if x.Status == types.StatusBroken {
		return &DetectResult{}, nil
	}

	near := make(map[string]*types.Assumption)
	decisions, err := e.store.GetLinkedDecisions(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if d.IsRetired() {
			continue
		}
		linked, err := e.store.GetLinkedAssumptions(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range linked {
			near[a.ID] = a
		}
	}
	if x.Scope == types.ScopeUniversal {
		scope := types.ScopeUniversal
		all, err := e.store.ListAssumptions(ctx, types.AssumptionFilter{Scope: &scope})
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			near[a.ID] = a
		}
	}

	var pairs []pair
	for _, nid := range sortedIDs(near) {
		a := near[nid]
		if nid == id || a.Status == types.StatusBroken {
			continue
		}
		pairs = append(pairs, assumptionPair(x, a))
	}
	return e.detect(ctx, pairs)
}

// detectForDecision compares a decision with the decisions it shares a
// dependency edge, an assumption or a constraint with. Constraints apply to
// every decision, so once the organization has one the neighbourhood is
// every live decision.
func (e *Engine) detectForDecision(ctx context.Context, id string) (*DetectResult, error) {
	y, err := e.store.GetDecision(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &DetectResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if y.IsRetired() {
		return &DetectResult{}, nil
	}

	near := make(map[string]*types.Decision)
	add := func(ds ...*types.Decision) {
		for _, d := range ds {
			near[d.ID] = d
		}
	}

	constraints, err := e.store.ListConstraints(ctx)
	if err != nil {
		return nil, err
	}
	if len(constraints) > 0 {
		all, err := e.store.ListDecisions(ctx, types.DecisionFilter{})
		if err != nil {
			return nil, err
		}
		add(all...)
	} else {
		deps, err := e.store.GetDependencies(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			other := dep.TargetID
			if other == id {
				other = dep.SourceID
			}
			d, err := e.store.GetDecision(ctx, other)
			if err != nil {
				return nil, err
			}
			add(d)
		}
		linked, err := e.store.GetLinkedAssumptions(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, a := range linked {
			ds, err := e.store.GetLinkedDecisions(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			add(ds...)
		}
	}

	var pairs []pair
	for _, nid := range sortedIDs(near) {
		d := near[nid]
		if nid == id || d.IsRetired() {
			continue
		}
		pairs = append(pairs, decisionPair(y, d))
	}
	return e.detect(ctx, pairs)
}

func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// detect classifies pairs concurrently, outside any transaction, then
// inserts the verdicts one transaction each. Pairs whose fingerprint was
// already settled are not sent to the classifier.
func (e *Engine) detect(ctx context.Context, pairs []pair) (*DetectResult, error) {
	res := &DetectResult{}
	var todo []pair
	for _, p := range pairs {
		settled, err := e.store.IsSuppressed(ctx, p.kind, p.fingerprint)
		if err != nil {
			return nil, err
		}
		if !settled {
			todo = append(todo, p)
		}
	}
	res.PairsCompared = len(todo)
	if len(todo) == 0 {
		return res, nil
	}

	verdicts := make([]*classify.Verdict, len(todo))
	failed := make([]bool, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	for i, p := range todo {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			v, err := e.classifier.Classify(gctx, p.a, p.b)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("classifier failed", "a", p.a.ID, "b", p.b.ID, "error", err)
				failed[i] = true
				return nil
			}
			if v != nil {
				if err := v.Validate(p.kind); err != nil {
					e.logger.Warn("classifier returned an invalid verdict", "a", p.a.ID, "b", p.b.ID, "error", err)
					return nil
				}
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, p := range todo {
		if failed[i] {
			res.ClassifierErrors++
		}
		v := verdicts[i]
		if v == nil || v.Confidence < e.cfg.Threshold {
			continue
		}
		created, updated, err := e.insertConflict(ctx, p, v)
		if err != nil {
			return nil, fmt.Errorf("record conflict %s/%s: %w", p.a.ID, p.b.ID, err)
		}
		if created {
			res.ConflictsDetected++
			e.metrics.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("tenet.kind", string(p.kind))))
		}
		if updated {
			res.ConflictsUpdated++
		}
	}
	return res, nil
}

// insertConflict records one verdict. Inside the transaction the pair is
// read again: if either entity vanished, stopped being eligible or changed
// content since it was classified, the verdict is dropped. The threshold
// and the open-conflict dedupe are applied here, against current state.
func (e *Engine) insertConflict(ctx context.Context, p pair, v *classify.Verdict) (created, updated bool, err error) {
	var fx effects
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		created, updated = false, false
		fx.reset()

		fp, ok, err := currentFingerprint(ctx, tx, p.kind, p.a.ID, p.b.ID)
		if err != nil || !ok || fp != p.fingerprint {
			return err
		}
		if v.Confidence < e.cfg.Threshold {
			return nil
		}
		settled, err := tx.IsSuppressed(ctx, p.kind, fp)
		if err != nil || settled {
			return err
		}

		existing, err := tx.FindOpenConflict(ctx, p.kind, p.a.ID, p.b.ID)
		switch {
		case err == nil:
			higher := v.Confidence > existing.Confidence
			if !higher && existing.Fingerprint == fp {
				return nil
			}
			if higher {
				existing.Type = v.Type
				existing.Confidence = v.Confidence
				existing.Explanation = v.Explanation
			}
			existing.Fingerprint = fp
			updated = higher
			return tx.UpdateConflict(ctx, existing)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		c := &types.Conflict{
			ID:          idgen.New(idgen.PrefixConflict),
			Kind:        p.kind,
			EntityA:     p.a.ID,
			EntityB:     p.b.ID,
			Type:        v.Type,
			Confidence:  v.Confidence,
			Explanation: v.Explanation,
			Fingerprint: fp,
			DetectedAt:  e.clock(),
		}
		if err := tx.CreateConflict(ctx, c); err != nil {
			return err
		}
		created = true
		return conflictNotes(ctx, tx, c, &fx)
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		// another process opened this pair first; its record stands
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	e.afterCommit(ctx, &fx)
	return created, updated, nil
}

// currentFingerprint recomputes the pair fingerprint from current state; ok
// is false when either entity is gone or no longer takes part in detection.
func currentFingerprint(ctx context.Context, r storage.Reader, kind types.ConflictKind, idA, idB string) (string, bool, error) {
	switch kind {
	case types.KindAssumption:
		a, err := r.GetAssumption(ctx, idA)
		if err != nil {
			return "", false, ignoreNotFound(err)
		}
		b, err := r.GetAssumption(ctx, idB)
		if err != nil {
			return "", false, ignoreNotFound(err)
		}
		if a.Status == types.StatusBroken || b.Status == types.StatusBroken {
			return "", false, nil
		}
		return types.PairFingerprint(a.ID, a.ContentHash(), b.ID, b.ContentHash()), true, nil
	case types.KindDecision:
		a, err := r.GetDecision(ctx, idA)
		if err != nil {
			return "", false, ignoreNotFound(err)
		}
		b, err := r.GetDecision(ctx, idB)
		if err != nil {
			return "", false, ignoreNotFound(err)
		}
		if a.IsRetired() || b.IsRetired() {
			return "", false, nil
		}
		return types.PairFingerprint(a.ID, a.ContentHash(), b.ID, b.ContentHash()), true, nil
	}
	return "", false, fmt.Errorf("unknown conflict kind %q", kind)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// conflictNotes queues a conflict_detected notification for every live
// decision the conflict touches.
func conflictNotes(ctx context.Context, r storage.Reader, c *types.Conflict, fx *effects) error {
	var decisions []string
	switch c.Kind {
	case types.KindDecision:
		decisions = []string{c.EntityA, c.EntityB}
	case types.KindAssumption:
		seen := make(map[string]bool)
		for _, id := range []string{c.EntityA, c.EntityB} {
			ds, err := r.GetLinkedDecisions(ctx, id)
			if err != nil {
				return err
			}
			for _, d := range ds {
				if !d.IsRetired() && !seen[d.ID] {
					seen[d.ID] = true
					decisions = append(decisions, d.ID)
				}
			}
		}
	}

	sev := notification.SeverityWarning
	if c.Confidence >= 0.9 {
		sev = notification.SeverityCritical
	}
	for _, id := range decisions {
		fx.notify(notification.Notification{
			Type:       notification.TypeConflictDetected,
			Severity:   sev,
			DecisionID: id,
			ConflictID: c.ID,
			Message:    fmt.Sprintf("%s %s conflict between %s and %s (%.2f)", c.Type, c.Kind, c.EntityA, c.EntityB, c.Confidence),
		})
	}
	return nil
}
