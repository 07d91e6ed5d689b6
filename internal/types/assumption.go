package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// AssumptionStatus is the current standing of an assumption.
type AssumptionStatus string

const (
	StatusValid  AssumptionStatus = "VALID"
	StatusShaky  AssumptionStatus = "SHAKY"
	StatusBroken AssumptionStatus = "BROKEN"
)

// IsValid checks if the status value is valid
func (s AssumptionStatus) IsValid() bool {
	switch s {
	case StatusValid, StatusShaky, StatusBroken:
		return true
	}
	return false
}

// Weight is the contribution of an assumption in this status to the health
// of every decision that links it.
func (s AssumptionStatus) Weight() float64 {
	switch s {
	case StatusValid:
		return 1.0
	case StatusShaky:
		return 0.5
	default:
		return 0.0
	}
}

// AssumptionScope discriminates organization-wide assumptions from ones owned
// by a single decision.
type AssumptionScope string

const (
	ScopeUniversal        AssumptionScope = "UNIVERSAL"
	ScopeDecisionSpecific AssumptionScope = "DECISION_SPECIFIC"
)

// IsValid checks if the scope value is valid
func (s AssumptionScope) IsValid() bool {
	return s == ScopeUniversal || s == ScopeDecisionSpecific
}

// Assumption is a premise decisions rest on.
//
// A UNIVERSAL assumption may be linked to any number of decisions. A
// DECISION_SPECIFIC assumption has an OwnerDecisionID and may only ever be
// linked to that decision; the store enforces this.
type Assumption struct {
	ID              string           `json:"id"`
	OrgID           string           `json:"org_id"`
	Description     string           `json:"description"`
	Status          AssumptionStatus `json:"status"`
	Scope           AssumptionScope  `json:"scope"`
	OwnerDecisionID string           `json:"owner_decision_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate checks if the assumption has valid field values
func (a *Assumption) Validate() error {
	if len(a.Description) == 0 {
		return fmt.Errorf("description is required")
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	if !a.Scope.IsValid() {
		return fmt.Errorf("invalid scope: %s", a.Scope)
	}
	switch a.Scope {
	case ScopeDecisionSpecific:
		if a.OwnerDecisionID == "" {
			return fmt.Errorf("decision-specific assumption requires an owning decision")
		}
	case ScopeUniversal:
		if a.OwnerDecisionID != "" {
			return fmt.Errorf("universal assumption cannot have an owning decision")
		}
	}
	return nil
}

// CanLinkTo reports whether the link cardinality rules allow linking this
// assumption to the given decision.
func (a *Assumption) CanLinkTo(decisionID string) bool {
	if a.Scope == ScopeDecisionSpecific {
		return a.OwnerDecisionID == decisionID
	}
	return true
}

// ContentHash hashes the text a conflict classifier compares. Status is left
// out: resolving a conflict flips status and must not make the pair look new.
func (a *Assumption) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(a.Description))
	h.Write([]byte{0})
	h.Write([]byte(a.Scope))
	h.Write([]byte{0})
	return fmt.Sprintf("%x", h.Sum(nil))
}

// AssumptionPatch is a partial update of an assumption.
type AssumptionPatch struct {
	Description *string           `json:"description,omitempty"`
	Status      *AssumptionStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the patch carries no change.
func (p AssumptionPatch) IsEmpty() bool {
	return p.Description == nil && p.Status == nil
}

// AssumptionFilter narrows ListAssumptions.
type AssumptionFilter struct {
	DecisionID string
	Scope      *AssumptionScope
	Status     *AssumptionStatus
}
