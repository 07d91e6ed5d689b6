// Package health derives a decision's health signal and lifecycle from the
// status of its assumptions and the constraint-violation signal.
//
// Evaluation is pure: callers load the inputs, call Evaluate and persist the
// Result (plus a health_evaluated event) when it reports a change.
package health

import (
	"math"

	"github.com/steveyegge/tenet/internal/types"
)

// ViolationCap is the highest health a decision can have while it violates
// an organizational constraint.
const ViolationCap = 40

// Lifecycle thresholds on the health signal.
const (
	StableThreshold      = 80
	UnderReviewThreshold = 60
	AtRiskThreshold      = 30
)

// Input is everything an evaluation looks at.
type Input struct {
	Health    int
	Lifecycle types.Lifecycle

	// Statuses of every linked assumption, universal and decision-specific.
	Statuses []types.AssumptionStatus

	// Violated is the constraint evaluator's verdict for the decision.
	Violated bool

	// Restore resets the signal to full health when there are no
	// assumptions to derive it from (a manual review vouches for it).
	Restore bool
}

// Result is the outcome of one evaluation.
type Result struct {
	OldHealth    int
	NewHealth    int
	OldLifecycle types.Lifecycle
	NewLifecycle types.Lifecycle
}

// Changed reports whether health or lifecycle moved.
func (r Result) Changed() bool {
	return r.OldHealth != r.NewHealth || r.OldLifecycle != r.NewLifecycle
}

// Degraded reports whether health went down.
func (r Result) Degraded() bool {
	return r.NewHealth < r.OldHealth
}

// Evaluate computes the new health and lifecycle. The lifecycle is only
// re-derived when the health signal changed or Restore is set. Retired
// decisions are returned unchanged.
func Evaluate(in Input) Result {
	res := Result{
		OldHealth:    in.Health,
		NewHealth:    in.Health,
		OldLifecycle: in.Lifecycle,
		NewLifecycle: in.Lifecycle,
	}
	if in.Lifecycle == types.LifecycleRetired {
		return res
	}

	if score, ok := Score(in.Statuses); ok {
		res.NewHealth = score
	} else if in.Restore {
		res.NewHealth = types.MaxHealth
	}
	if in.Violated && res.NewHealth > ViolationCap {
		res.NewHealth = ViolationCap
	}

	// A lifecycle set by hand (a conflict resolution sending a decision to
	// review) stands until the signal moves or a review re-derives it.
	if res.NewHealth == in.Health && !in.Restore {
		return res
	}
	if lc := LifecycleFor(res.NewHealth); lc != in.Lifecycle {
		res.NewLifecycle = lc
	}
	return res
}

// Score is round(100 × mean weight) over the statuses; ok is false when
// there are none. A perfect 100 is kept for the all-VALID case, so a single
// weaker assumption always costs at least one point.
func Score(statuses []types.AssumptionStatus) (score int, ok bool) {
	if len(statuses) == 0 {
		return 0, false
	}
	var sum float64
	allValid := true
	for _, s := range statuses {
		sum += s.Weight()
		if s != types.StatusValid {
			allValid = false
		}
	}
	score = int(math.Round(100 * sum / float64(len(statuses))))
	if !allValid && score >= types.MaxHealth {
		score = types.MaxHealth - 1
	}
	return score, true
}

// LifecycleFor maps a health signal to its lifecycle. It never returns
// RETIRED.
func LifecycleFor(health int) types.Lifecycle {
	switch {
	case health >= StableThreshold:
		return types.LifecycleStable
	case health >= UnderReviewThreshold:
		return types.LifecycleUnderReview
	case health >= AtRiskThreshold:
		return types.LifecycleAtRisk
	default:
		return types.LifecycleInvalidated
	}
}
