package history

import (
	"fmt"
	"maps"

	"github.com/steveyegge/tenet/internal/types"
)

// State is the part of a decision that its event log determines.
type State struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Version          int               `json:"version"`
	HealthSignal     int               `json:"health_signal"`
	Lifecycle        types.Lifecycle   `json:"lifecycle"`
	GovernanceLocked bool              `json:"governance_locked"`
}

// StateOf extracts the replayable state of a live decision.
func StateOf(d *types.Decision) State {
	return State{
		Title:            d.Title,
		Description:      d.Description,
		Category:         d.Category,
		Parameters:       d.Parameters,
		Version:          d.Version,
		HealthSignal:     d.HealthSignal,
		Lifecycle:        d.Lifecycle,
		GovernanceLocked: d.GovernanceLocked,
	}
}

func (s *State) applySnapshot(snap types.DecisionSnapshot) {
	s.Title = snap.Title
	s.Description = snap.Description
	s.Category = snap.Category
	s.Parameters = snap.Parameters
	s.HealthSignal = snap.HealthSignal
	s.Lifecycle = snap.Lifecycle
	s.GovernanceLocked = snap.GovernanceLocked
}

// Diff lists the fields on which s and o disagree. Nil and empty parameter
// maps are equal.
func (s State) Diff(o State) []string {
	var fields []string
	if s.Title != o.Title {
		fields = append(fields, "title")
	}
	if s.Description != o.Description {
		fields = append(fields, "description")
	}
	if s.Category != o.Category {
		fields = append(fields, "category")
	}
	if !maps.Equal(s.Parameters, o.Parameters) {
		fields = append(fields, "parameters")
	}
	if s.Version != o.Version {
		fields = append(fields, "version")
	}
	if s.HealthSignal != o.HealthSignal {
		fields = append(fields, "health_signal")
	}
	if s.Lifecycle != o.Lifecycle {
		fields = append(fields, "lifecycle")
	}
	if s.GovernanceLocked != o.GovernanceLocked {
		fields = append(fields, "governance_locked")
	}
	return fields
}

// Replay folds a decision's events, oldest first, into its state. The log
// must start with the created event and version numbers must increase by
// exactly one.
func Replay(events []*types.VersionEvent) (*State, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("empty event log")
	}
	if events[0].Type() != types.EventCreated {
		return nil, fmt.Errorf("log starts with %s, want %s", events[0].Type(), types.EventCreated)
	}

	var s State
	for i, e := range events {
		if i > 0 && e.Seq <= events[i-1].Seq {
			return nil, fmt.Errorf("event %s out of order (seq %d after %d)", e.ID, e.Seq, events[i-1].Seq)
		}
		if e.Version != 0 {
			if e.Version != s.Version+1 {
				return nil, fmt.Errorf("event %s carries version %d after version %d", e.ID, e.Version, s.Version)
			}
			s.Version = e.Version
		}

		switch p := e.Payload.(type) {
		case types.Created:
			if i > 0 {
				return nil, fmt.Errorf("second created event %s", e.ID)
			}
			s.applySnapshot(p.Snapshot)
		case types.FieldUpdated:
			s.applySnapshot(p.Snapshot)
		case types.EditApproved:
			s.applySnapshot(p.Snapshot)
		case types.GovernanceLock:
			s.GovernanceLocked = true
		case types.GovernanceUnlock:
			s.GovernanceLocked = false
		case types.HealthEvaluated:
			s.HealthSignal = p.NewHealth
			s.Lifecycle = p.NewLifecycle
		case types.DecisionConflictResolved:
			s.Lifecycle = p.NewLifecycle
			s.GovernanceLocked = p.NewLocked
		case types.EditRequested, types.EditRejected, types.AssumptionConflictResolved,
			types.RelationLinked, types.RelationUnlinked:
			// No effect on decision fields
		default:
			return nil, fmt.Errorf("event %s: unhandled payload %T", e.ID, e.Payload)
		}
	}
	return &s, nil
}
