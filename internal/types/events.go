package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the variant of a VersionEvent.
type EventType string

const (
	EventCreated                    EventType = "created"
	EventFieldUpdated               EventType = "field_updated"
	EventGovernanceLock             EventType = "governance_lock"
	EventGovernanceUnlock           EventType = "governance_unlock"
	EventEditRequested              EventType = "edit_requested"
	EventEditApproved               EventType = "edit_approved"
	EventEditRejected               EventType = "edit_rejected"
	EventAssumptionConflictResolved EventType = "assumption_conflict_resolved"
	EventDecisionConflictResolved   EventType = "decision_conflict_resolved"
	EventRelationLinked             EventType = "relation_linked"
	EventRelationUnlinked           EventType = "relation_unlinked"
	EventHealthEvaluated            EventType = "health_evaluated"
)

// IsValid checks if the event type value is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventCreated, EventFieldUpdated, EventGovernanceLock, EventGovernanceUnlock,
		EventEditRequested, EventEditApproved, EventEditRejected,
		EventAssumptionConflictResolved, EventDecisionConflictResolved,
		EventRelationLinked, EventRelationUnlinked, EventHealthEvaluated:
		return true
	}
	return false
}

// Trigger names what caused a health evaluation.
type Trigger string

const (
	TriggerAssumptionStatusChange Trigger = "assumption_status_change"
	TriggerConstraintViolation    Trigger = "constraint_violation"
	TriggerConflictResolution     Trigger = "conflict_resolution"
	TriggerManualReview           Trigger = "manual_review"
	TriggerDependencyChange       Trigger = "dependency_change"
)

// Payload is the type-specific body of a VersionEvent. Each event type has
// exactly one payload struct.
type Payload interface {
	EventType() EventType
}

// VersionEvent is one immutable entry of a decision's history.
type VersionEvent struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	DecisionID string    `json:"decision_id"`
	Seq        int64     `json:"seq"`
	Version    int       `json:"version_number,omitempty"` // 0 unless the event changes fields
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
	Payload    Payload   `json:"payload"`
}

// Type returns the event type of the payload.
func (e *VersionEvent) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// MarshalJSON adds the event type next to the payload.
func (e VersionEvent) MarshalJSON() ([]byte, error) {
	type plain VersionEvent
	return json.Marshal(struct {
		plain
		EventType EventType `json:"event_type"`
	}{plain(e), e.Type()})
}

// Created is written once, when a decision is submitted.
type Created struct {
	Snapshot DecisionSnapshot `json:"snapshot"`
}

// FieldUpdated is a direct edit by a lead, or a manual retirement.
type FieldUpdated struct {
	Changes       []FieldChange    `json:"changes"`
	Justification string           `json:"justification,omitempty"`
	Snapshot      DecisionSnapshot `json:"snapshot"`
}

// GovernanceLock records a lock being placed on a decision.
type GovernanceLock struct {
	Justification string `json:"justification"`
}

// GovernanceUnlock records a lock being lifted.
type GovernanceUnlock struct {
	Justification string `json:"justification"`
}

// EditRequested records an edit request being filed.
type EditRequested struct {
	RequestID     string        `json:"request_id"`
	Requester     string        `json:"requester"`
	Justification string        `json:"justification"`
	Changes       DecisionPatch `json:"proposed_changes"`
}

// EditApproved records an approved edit request and the resulting state.
type EditApproved struct {
	RequestID string           `json:"request_id"`
	Requester string           `json:"requester"`
	Note      string           `json:"note,omitempty"`
	Changes   []FieldChange    `json:"changes,omitempty"`
	Linked    []string         `json:"linked_assumptions,omitempty"`
	Unlinked  []string         `json:"unlinked_assumptions,omitempty"`
	Snapshot  DecisionSnapshot `json:"snapshot"`
}

// EditRejected records a rejected edit request.
type EditRejected struct {
	RequestID string `json:"request_id"`
	Requester string `json:"requester"`
	Note      string `json:"note,omitempty"`
}

// StatusChange is one assumption status flip made by a resolution.
type StatusChange struct {
	AssumptionID string           `json:"assumption_id"`
	Old          AssumptionStatus `json:"old"`
	New          AssumptionStatus `json:"new"`
}

// AssumptionConflictResolved is written on every decision linking either
// assumption of a resolved conflict.
type AssumptionConflictResolved struct {
	ConflictID    string           `json:"conflict_id"`
	Action        ResolutionAction `json:"action"`
	Notes         string           `json:"notes,omitempty"`
	AssumptionA   string           `json:"assumption_a"`
	AssumptionB   string           `json:"assumption_b"`
	StatusChanges []StatusChange   `json:"status_changes,omitempty"`
}

// DecisionConflictResolved is written on both decisions of a resolved
// conflict. Old and new values are those of the decision carrying the event.
type DecisionConflictResolved struct {
	ConflictID   string           `json:"conflict_id"`
	Action       ResolutionAction `json:"action"`
	Notes        string           `json:"notes,omitempty"`
	DecisionA    string           `json:"decision_a"`
	DecisionB    string           `json:"decision_b"`
	OldLifecycle Lifecycle        `json:"old_lifecycle"`
	NewLifecycle Lifecycle        `json:"new_lifecycle"`
	OldLocked    bool             `json:"old_locked"`
	NewLocked    bool             `json:"new_locked"`
}

// RelationKind says what a relation event links to.
type RelationKind string

const (
	RelationAssumption RelationKind = "assumption"
	RelationDependsOn  RelationKind = "depends_on"
	RelationBlocks     RelationKind = "blocks"
)

// Relation describes one edge touching a decision.
type Relation struct {
	Kind      RelationKind `json:"kind"`
	RelatedID string       `json:"related_id"`
	Reason    string       `json:"reason,omitempty"`
}

// RelationLinked records an edge being added.
type RelationLinked struct {
	Relation
}

// RelationUnlinked records an edge being removed.
type RelationUnlinked struct {
	Relation
}

// HealthEvaluated records a change of health signal or lifecycle.
type HealthEvaluated struct {
	OldHealth    int       `json:"old_health"`
	NewHealth    int       `json:"new_health"`
	OldLifecycle Lifecycle `json:"old_lifecycle"`
	NewLifecycle Lifecycle `json:"new_lifecycle"`
	TriggeredBy  Trigger   `json:"triggered_by"`
}

// HealthChange is the signed delta of the evaluation.
func (h HealthEvaluated) HealthChange() int {
	return h.NewHealth - h.OldHealth
}

func (Created) EventType() EventType                    { return EventCreated }
func (FieldUpdated) EventType() EventType               { return EventFieldUpdated }
func (GovernanceLock) EventType() EventType             { return EventGovernanceLock }
func (GovernanceUnlock) EventType() EventType           { return EventGovernanceUnlock }
func (EditRequested) EventType() EventType              { return EventEditRequested }
func (EditApproved) EventType() EventType               { return EventEditApproved }
func (EditRejected) EventType() EventType               { return EventEditRejected }
func (AssumptionConflictResolved) EventType() EventType { return EventAssumptionConflictResolved }
func (DecisionConflictResolved) EventType() EventType   { return EventDecisionConflictResolved }
func (RelationLinked) EventType() EventType             { return EventRelationLinked }
func (RelationUnlinked) EventType() EventType           { return EventRelationUnlinked }
func (HealthEvaluated) EventType() EventType            { return EventHealthEvaluated }

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil event payload")
	}
	return json.Marshal(p)
}

// DecodePayload rebuilds the payload of an event of type t.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	var err error
	switch t {
	case EventCreated:
		var p Created
		err = json.Unmarshal(data, &p)
		return p, err
	case EventFieldUpdated:
		var p FieldUpdated
		err = json.Unmarshal(data, &p)
		return p, err
	case EventGovernanceLock:
		var p GovernanceLock
		err = json.Unmarshal(data, &p)
		return p, err
	case EventGovernanceUnlock:
		var p GovernanceUnlock
		err = json.Unmarshal(data, &p)
		return p, err
	case EventEditRequested:
		var p EditRequested
		err = json.Unmarshal(data, &p)
		return p, err
	case EventEditApproved:
		var p EditApproved
		err = json.Unmarshal(data, &p)
		return p, err
	case EventEditRejected:
		var p EditRejected
		err = json.Unmarshal(data, &p)
		return p, err
	case EventAssumptionConflictResolved:
		var p AssumptionConflictResolved
		err = json.Unmarshal(data, &p)
		return p, err
	case EventDecisionConflictResolved:
		var p DecisionConflictResolved
		err = json.Unmarshal(data, &p)
		return p, err
	case EventRelationLinked:
		var p RelationLinked
		err = json.Unmarshal(data, &p)
		return p, err
	case EventRelationUnlinked:
		var p RelationUnlinked
		err = json.Unmarshal(data, &p)
		return p, err
	case EventHealthEvaluated:
		var p HealthEvaluated
		err = json.Unmarshal(data, &p)
		return p, err
	}
	return nil, fmt.Errorf("unknown event type: %q", t)
}
