package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/tenet/internal/history"
	"github.com/steveyegge/tenet/internal/types"
)

// events returns the log of a decision, oldest first, failing with
// ErrNotFound for an unknown decision.
func (e *Engine) events(ctx context.Context, decisionID string) ([]*types.VersionEvent, error) {
	if _, err := e.store.GetDecision(ctx, decisionID); err != nil {
		return nil, err
	}
	return e.store.GetEvents(ctx, decisionID)
}

// Timeline returns every event of a decision, newest first.
func (e *Engine) Timeline(ctx context.Context, decisionID string) ([]*types.VersionEvent, error) {
	evs, err := e.events(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return history.Timeline(evs), nil
}

// Versions returns the field-affecting revisions of a decision, each with a
// full snapshot.
func (e *Engine) Versions(ctx context.Context, decisionID string) ([]history.Version, error) {
	evs, err := e.events(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return history.Versions(evs), nil
}

// RelationHistory returns the link and unlink events of a decision.
func (e *Engine) RelationHistory(ctx context.Context, decisionID string) ([]history.RelationChange, error) {
	evs, err := e.events(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return history.Relations(evs), nil
}

// HealthHistory returns the health evaluations of a decision.
func (e *Engine) HealthHistory(ctx context.Context, decisionID string) ([]history.HealthChange, error) {
	evs, err := e.events(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return history.Health(evs), nil
}

// Replay rebuilds the state of a decision from its event log alone.
func (e *Engine) Replay(ctx context.Context, decisionID string) (*history.State, error) {
	evs, err := e.events(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return history.Replay(evs)
}

// VerifyReplay checks that the event log of a decision reproduces the live
// record. It fails with ErrReplayMismatch naming the fields that differ.
func (e *Engine) VerifyReplay(ctx context.Context, decisionID string) error {
	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return err
	}
	evs, err := e.store.GetEvents(ctx, decisionID)
	if err != nil {
		return err
	}
	got, err := history.Replay(evs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplayMismatch, err)
	}
	if diff := got.Diff(history.StateOf(d)); len(diff) > 0 {
		return fmt.Errorf("%w: %s differs on %s", ErrReplayMismatch, decisionID, strings.Join(diff, ", "))
	}
	return nil
}
