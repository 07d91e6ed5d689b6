// Package history derives the read views of a decision's version log.
//
// Nothing here is stored: timeline, versions, relation history and health
// history are projections of the append-only event sequence, and Replay
// folds the same sequence back into the decision's current state.
package history

import (
	"time"

	"github.com/steveyegge/tenet/internal/types"
)

// Timeline returns every event, newest first.
func Timeline(events []*types.VersionEvent) []*types.VersionEvent {
	out := make([]*types.VersionEvent, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}

// Version is one field-affecting revision of a decision.
type Version struct {
	Number    int                    `json:"version_number"`
	EventID   string                 `json:"event_id"`
	EventType types.EventType        `json:"event_type"`
	Actor     string                 `json:"actor"`
	CreatedAt time.Time              `json:"created_at"`
	Changes   []types.FieldChange    `json:"changes,omitempty"`
	Snapshot  types.DecisionSnapshot `json:"snapshot"`
}

// Versions returns the version-bearing events in version order.
func Versions(events []*types.VersionEvent) []Version {
	var out []Version
	for _, e := range events {
		if e.Version == 0 {
			continue
		}
		v := Version{
			Number:    e.Version,
			EventID:   e.ID,
			EventType: e.Type(),
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		}
		switch p := e.Payload.(type) {
		case types.Created:
			v.Snapshot = p.Snapshot
		case types.FieldUpdated:
			v.Changes = p.Changes
			v.Snapshot = p.Snapshot
		case types.EditApproved:
			v.Changes = p.Changes
			v.Snapshot = p.Snapshot
		default:
			continue
		}
		out = append(out, v)
	}
	return out
}

// RelationChange is one link or unlink touching a decision.
type RelationChange struct {
	EventID   string         `json:"event_id"`
	Linked    bool           `json:"linked"`
	Relation  types.Relation `json:"relation"`
	Actor     string         `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}

// Relations returns relation_linked and relation_unlinked events, newest
// first.
func Relations(events []*types.VersionEvent) []RelationChange {
	var out []RelationChange
	for _, e := range Timeline(events) {
		rc := RelationChange{EventID: e.ID, Actor: e.Actor, CreatedAt: e.CreatedAt}
		switch p := e.Payload.(type) {
		case types.RelationLinked:
			rc.Linked = true
			rc.Relation = p.Relation
		case types.RelationUnlinked:
			rc.Relation = p.Relation
		default:
			continue
		}
		out = append(out, rc)
	}
	return out
}

// HealthChange is one health evaluation that moved the signal or lifecycle.
type HealthChange struct {
	EventID      string          `json:"event_id"`
	OldHealth    int             `json:"old_health"`
	NewHealth    int             `json:"new_health"`
	HealthChange int             `json:"health_change"`
	OldLifecycle types.Lifecycle `json:"old_lifecycle"`
	NewLifecycle types.Lifecycle `json:"new_lifecycle"`
	TriggeredBy  types.Trigger   `json:"triggered_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Health returns health_evaluated events, newest first.
func Health(events []*types.VersionEvent) []HealthChange {
	var out []HealthChange
	for _, e := range Timeline(events) {
		p, ok := e.Payload.(types.HealthEvaluated)
		if !ok {
			continue
		}
		out = append(out, HealthChange{
			EventID:      e.ID,
			OldHealth:    p.OldHealth,
			NewHealth:    p.NewHealth,
			HealthChange: p.HealthChange(),
			OldLifecycle: p.OldLifecycle,
			NewLifecycle: p.NewLifecycle,
			TriggeredBy:  p.TriggeredBy,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

// Since keeps the events created at or after t.
func Since(events []*types.VersionEvent, t time.Time) []*types.VersionEvent {
	var out []*types.VersionEvent
	for _, e := range events {
		if !e.CreatedAt.Before(t) {
			out = append(out, e)
		}
	}
	return out
}
