package types

import (
	"fmt"
	"time"
)

// ConstraintType classifies an organizational constraint.
type ConstraintType string

const (
	ConstraintLegal      ConstraintType = "LEGAL"
	ConstraintBudget     ConstraintType = "BUDGET"
	ConstraintPolicy     ConstraintType = "POLICY"
	ConstraintTechnical  ConstraintType = "TECHNICAL"
	ConstraintCompliance ConstraintType = "COMPLIANCE"
	ConstraintOther      ConstraintType = "OTHER"
)

// IsValid checks if the constraint type value is valid
func (c ConstraintType) IsValid() bool {
	switch c {
	case ConstraintLegal, ConstraintBudget, ConstraintPolicy, ConstraintTechnical, ConstraintCompliance, ConstraintOther:
		return true
	}
	return false
}

// Constraint is an organizational rule. Every constraint applies to every
// decision of its organization; there is no link table.
type Constraint struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        ConstraintType `json:"constraint_type"`
	IsImmutable bool           `json:"is_immutable"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate checks if the constraint has valid field values
func (c *Constraint) Validate() error {
	if len(c.Name) == 0 {
		return fmt.Errorf("name is required")
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid constraint type: %s", c.Type)
	}
	return nil
}

// Dependency is a directed edge: Source depends on Target (Target blocks Source).
type Dependency struct {
	OrgID     string    `json:"org_id"`
	SourceID  string    `json:"source_decision_id"`
	TargetID  string    `json:"target_decision_id"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
