package types

import (
	"fmt"
	"time"
)

// EditRequestStatus tracks an edit request through approval.
type EditRequestStatus string

const (
	EditStatusPending  EditRequestStatus = "PENDING"
	EditStatusApproved EditRequestStatus = "APPROVED"
	EditStatusRejected EditRequestStatus = "REJECTED"
)

// IsValid checks if the status value is valid
func (s EditRequestStatus) IsValid() bool {
	switch s {
	case EditStatusPending, EditStatusApproved, EditStatusRejected:
		return true
	}
	return false
}

// MinJustificationLength is the shortest justification an edit request accepts.
const MinJustificationLength = 10

// EditRequest is a proposed change to a decision awaiting a lead's verdict.
type EditRequest struct {
	ID            string            `json:"id"`
	OrgID         string            `json:"org_id"`
	DecisionID    string            `json:"decision_id"`
	Requester     string            `json:"requester"`
	Justification string            `json:"justification"`
	Changes       DecisionPatch     `json:"proposed_changes"`
	Status        EditRequestStatus `json:"status"`
	DecidedBy     string            `json:"decided_by,omitempty"`
	DecidedAt     *time.Time        `json:"decided_at,omitempty"`
	DecisionNote  string            `json:"decision_note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Validate checks if the edit request has valid field values
func (r *EditRequest) Validate() error {
	if r.DecisionID == "" {
		return fmt.Errorf("decision_id is required")
	}
	if r.Requester == "" {
		return fmt.Errorf("requester is required")
	}
	if len([]rune(r.Justification)) < MinJustificationLength {
		return fmt.Errorf("justification must be at least %d characters", MinJustificationLength)
	}
	if r.Changes.IsEmpty() {
		return fmt.Errorf("proposed changes are empty")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return r.Changes.Validate()
}
