// Package classify decides whether two assumptions or two decisions
// contradict each other.
//
// The conflict detector in internal/engine owns orchestration (which pairs
// are compared, thresholds, dedupe). A Classifier only looks at one pair and
// returns a verdict, or nil when it sees no conflict.
package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/tenet/internal/types"
)

// Entity is the classifier's view of an assumption or a decision.
type Entity struct {
	ID         string
	Kind       types.ConflictKind
	Text       string
	Category   string
	Parameters map[string]string
}

// FromAssumption builds the classifier view of an assumption.
func FromAssumption(a *types.Assumption) Entity {
	return Entity{
		ID:   a.ID,
		Kind: types.KindAssumption,
		Text: a.Description,
	}
}

// FromDecision builds the classifier view of a decision.
func FromDecision(d *types.Decision) Entity {
	text := d.Title
	if d.Description != "" {
		text += ". " + d.Description
	}
	return Entity{
		ID:         d.ID,
		Kind:       types.KindDecision,
		Text:       text,
		Category:   d.Category,
		Parameters: d.Parameters,
	}
}

// Verdict is a classifier's finding about a pair.
type Verdict struct {
	Type        types.ConflictType
	Confidence  float64
	Explanation string
}

// Validate checks the verdict against the pair's kind.
func (v *Verdict) Validate(kind types.ConflictKind) error {
	if !v.Type.ValidFor(kind) {
		return fmt.Errorf("conflict type %q is not valid for %s conflicts", v.Type, kind)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", v.Confidence)
	}
	return nil
}

// Classifier compares one pair of entities of the same kind.
type Classifier interface {
	Classify(ctx context.Context, a, b Entity) (*Verdict, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, a, b Entity) (*Verdict, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, a, b Entity) (*Verdict, error) {
	return f(ctx, a, b)
}

func checkPair(a, b Entity) error {
	if a.Kind != b.Kind {
		return fmt.Errorf("cannot compare %s with %s", a.Kind, b.Kind)
	}
	if a.ID != "" && a.ID == b.ID {
		return fmt.Errorf("cannot compare %s with itself", a.ID)
	}
	return nil
}

func sortedParamKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
