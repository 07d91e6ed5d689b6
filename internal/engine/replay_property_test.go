package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/types"
)

// expected reports errors a random operation sequence runs into on purpose.
func expected(err error) bool {
	for _, target := range []error{ErrValidation, ErrConflictingRequest, ErrCycle, ErrAlreadyExists, ErrNotFound, ErrInUse} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type world struct {
	h           *harness
	rng         *rand.Rand
	decisions   []*types.Decision
	assumptions []*types.Assumption
}

func (w *world) decision() string   { return w.decisions[w.rng.Intn(len(w.decisions))].ID }
func (w *world) assumption() string { return w.assumptions[w.rng.Intn(len(w.assumptions))].ID }

func (w *world) actor() Actor {
	if w.rng.Intn(2) == 0 {
		return lead
	}
	return member
}

func (w *world) pending(ctx context.Context) (*types.EditRequest, error) {
	status := types.EditStatusPending
	reqs, err := w.h.ListEditRequests(ctx, w.decision(), &status)
	if err != nil || len(reqs) == 0 {
		return nil, err
	}
	return reqs[0], nil
}

var assumptionActions = []types.ResolutionAction{
	types.ActionValidateA, types.ActionValidateB, types.ActionDeprecateBoth, types.ActionKeepBoth, types.ActionMerge,
}

var decisionActions = []types.ResolutionAction{
	types.ActionPrioritizeA, types.ActionPrioritizeB, types.ActionMerge, types.ActionKeepBoth, types.ActionRetireBoth,
}

// step runs one random operation and returns its name and error.
func (w *world) step(ctx context.Context, i int) (string, error) {
	h := w.h
	switch op := w.rng.Intn(13); op {
	case 0:
		_, err := h.UpdateDecision(ctx, w.actor(), w.decision(),
			types.DecisionPatch{Title: ptr(fmt.Sprintf("title %d", i))}, "random edit number "+fmt.Sprint(i))
		return "update", err
	case 1:
		_, err := h.RequestEdit(ctx, member, w.decision(), "random request "+fmt.Sprint(i),
			types.DecisionPatch{
				Description:     ptr(fmt.Sprintf("description %d", i)),
				LinkAssumptions: []string{w.assumption()},
			})
		return "request", err
	case 2, 3:
		req, err := w.pending(ctx)
		if err != nil || req == nil {
			return "decide", err
		}
		if op == 2 {
			_, err = h.ApproveEdit(ctx, lead, req.ID, "ok")
			return "approve", err
		}
		_, err = h.RejectEdit(ctx, lead, req.ID, "no")
		return "reject", err
	case 4:
		id := w.decision()
		d, err := h.GetDecision(ctx, id)
		if err != nil {
			return "lock", err
		}
		if d.GovernanceLocked {
			_, err = h.UnlockDecision(ctx, lead, id, "random unlock")
			return "unlock", err
		}
		_, err = h.LockDecision(ctx, lead, id, "random lock")
		return "lock", err
	case 5:
		return "link", h.LinkAssumption(ctx, w.actor(), w.decision(), w.assumption(), "random link")
	case 6:
		return "unlink", h.UnlinkAssumption(ctx, w.actor(), w.decision(), w.assumption(), "random unlink")
	case 7:
		statuses := []types.AssumptionStatus{types.StatusValid, types.StatusShaky, types.StatusBroken}
		s := statuses[w.rng.Intn(len(statuses))]
		_, err := h.UpdateAssumption(ctx, w.actor(), w.assumption(), types.AssumptionPatch{Status: &s})
		return "status", err
	case 8:
		_, err := h.CreateDependency(ctx, w.actor(), w.decision(), w.decision())
		return "depend", err
	case 9:
		return "undepend", h.RemoveDependency(ctx, w.actor(), w.decision(), w.decision())
	case 10:
		if _, err := h.DetectConflicts(ctx); err != nil {
			return "detect", err
		}
		open, err := h.ListConflicts(ctx, types.ConflictFilter{OpenOnly: true})
		if err != nil || len(open) == 0 {
			return "resolve", err
		}
		c := open[w.rng.Intn(len(open))]
		if c.Kind == types.KindAssumption {
			_, err = h.ResolveAssumptionConflict(ctx, lead, c.ID, assumptionActions[w.rng.Intn(len(assumptionActions))], "random")
		} else {
			_, err = h.ResolveDecisionConflict(ctx, lead, c.ID, decisionActions[w.rng.Intn(len(decisionActions))], "random")
		}
		return "resolve", err
	case 11:
		_, err := h.MarkDecisionReviewed(ctx, w.actor(), w.decision())
		return "review", err
	default:
		_, err := h.SweepHealth(ctx)
		return "sweep", err
	}
}

func TestReplayMatchesStoredState(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			h := setupEngine(t)
			ctx := context.Background()
			w := &world{h: h, rng: rand.New(rand.NewSource(seed))}

			for i := range 4 {
				w.decisions = append(w.decisions, h.decision(t, fmt.Sprintf("decision %d", i)))
			}
			for i := range 5 {
				w.assumptions = append(w.assumptions, h.universal(t, fmt.Sprintf("premise %d", i), ""))
			}
			h.classifier.set("premise 0", "premise 1", types.ConflictContradictory, 0.8)
			h.classifier.set("premise 2", "premise 3", types.ConflictIncompatible, 0.6)
			h.classifier.set("decision 0", "decision 1", types.ConflictResourceCompetition, 0.7)

			for i := range 80 {
				name, err := w.step(ctx, i)
				if err != nil && !expected(err) {
					t.Fatalf("step %d (%s): %v", i, name, err)
				}
			}

			for _, d := range w.decisions {
				require.NoError(t, h.VerifyReplay(ctx, d.ID))

				versions, err := h.Versions(ctx, d.ID)
				require.NoError(t, err)
				for j, v := range versions {
					assert.Equal(t, j+1, v.Number, "versions are dense and ordered")
				}
				current := h.get(t, d.ID)
				assert.Equal(t, len(versions), current.Version)
			}
		})
	}
}

func TestConcurrentWritersKeepHistoryConsistent(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Pick a message broker")
	a := h.universal(t, "Throughput stays modest", d.ID)
	h.universal(t, "Ops prefers managed services", d.ID)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*writers)
	for i := range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.UpdateDecision(ctx, lead, d.ID,
				types.DecisionPatch{Title: ptr(fmt.Sprintf("Pick broker %d", i))}, "concurrent edit")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			s := types.StatusShaky
			if i%2 == 0 {
				s = types.StatusValid
			}
			_, err := h.UpdateAssumption(ctx, lead, a.ID, types.AssumptionPatch{Status: &s})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := h.get(t, d.ID)
	assert.Equal(t, 1+writers, got.Version)
	h.requireReplay(t, d.ID)

	versions, err := h.Versions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1+writers)
}

func TestConcurrentRequestsAllowOnePending(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()
	d := h.decision(t, "Quarterly planning")

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.RequestEdit(ctx, member, d.ID, "proposal from a teammate",
				types.DecisionPatch{Title: ptr(fmt.Sprintf("Planning v%d", i))})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicting int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflictingRequest):
			conflicting++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicting)
}
