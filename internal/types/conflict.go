package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ConflictKind tells which entities a conflict is about.
type ConflictKind string

const (
	KindAssumption ConflictKind = "assumption"
	KindDecision   ConflictKind = "decision"
)

// IsValid checks if the kind value is valid
func (k ConflictKind) IsValid() bool {
	return k == KindAssumption || k == KindDecision
}

// ConflictType classifies a contradiction.
type ConflictType string

const (
	ConflictContradictory        ConflictType = "CONTRADICTORY"
	ConflictMutuallyExclusive    ConflictType = "MUTUALLY_EXCLUSIVE"
	ConflictIncompatible         ConflictType = "INCOMPATIBLE"
	ConflictResourceCompetition  ConflictType = "RESOURCE_COMPETITION"
	ConflictObjectiveUndermining ConflictType = "OBJECTIVE_UNDERMINING"
	ConflictPremiseInvalidation  ConflictType = "PREMISE_INVALIDATION"
)

// ValidFor reports whether t is a legal conflict type for kind k.
func (t ConflictType) ValidFor(k ConflictKind) bool {
	switch k {
	case KindAssumption:
		switch t {
		case ConflictContradictory, ConflictMutuallyExclusive, ConflictIncompatible:
			return true
		}
	case KindDecision:
		switch t {
		case ConflictContradictory, ConflictResourceCompetition, ConflictObjectiveUndermining,
			ConflictPremiseInvalidation, ConflictMutuallyExclusive:
			return true
		}
	}
	return false
}

// ResolutionAction is how a conflict was closed.
type ResolutionAction string

const (
	// Assumption conflicts
	ActionValidateA     ResolutionAction = "VALIDATE_A"
	ActionValidateB     ResolutionAction = "VALIDATE_B"
	ActionDeprecateBoth ResolutionAction = "DEPRECATE_BOTH"

	// Decision conflicts
	ActionPrioritizeA ResolutionAction = "PRIORITIZE_A"
	ActionPrioritizeB ResolutionAction = "PRIORITIZE_B"
	ActionRetireBoth  ResolutionAction = "RETIRE_BOTH"

	// Both kinds
	ActionMerge    ResolutionAction = "MERGE"
	ActionKeepBoth ResolutionAction = "KEEP_BOTH"
)

// ValidFor reports whether a is a legal resolution for a conflict of kind k.
func (a ResolutionAction) ValidFor(k ConflictKind) bool {
	switch a {
	case ActionMerge, ActionKeepBoth:
		return k.IsValid()
	case ActionValidateA, ActionValidateB, ActionDeprecateBoth:
		return k == KindAssumption
	case ActionPrioritizeA, ActionPrioritizeB, ActionRetireBoth:
		return k == KindDecision
	}
	return false
}

// MinConfidence is the default threshold below which a classifier verdict
// is discarded.
const MinConfidence = 0.5

// Conflict is a detected contradiction between two assumptions or two
// decisions. It is open while ResolvedAt is nil.
type Conflict struct {
	ID              string           `json:"id"`
	OrgID           string           `json:"org_id"`
	Kind            ConflictKind     `json:"kind"`
	EntityA         string           `json:"entity_a"`
	EntityB         string           `json:"entity_b"`
	Type            ConflictType     `json:"conflict_type"`
	Confidence      float64          `json:"confidence_score"`
	Explanation     string           `json:"explanation,omitempty"`
	Fingerprint     string           `json:"fingerprint"`
	DetectedAt      time.Time        `json:"detected_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	Resolution      ResolutionAction `json:"resolution_action,omitempty"`
	ResolutionNotes string           `json:"resolution_notes,omitempty"`
	ResolvedBy      string           `json:"resolved_by,omitempty"`
}

// IsOpen reports whether the conflict still awaits resolution.
func (c *Conflict) IsOpen() bool {
	return c.ResolvedAt == nil
}

// Validate checks if the conflict has valid field values
func (c *Conflict) Validate() error {
	if !c.Kind.IsValid() {
		return fmt.Errorf("invalid conflict kind: %s", c.Kind)
	}
	if c.EntityA == "" || c.EntityB == "" {
		return fmt.Errorf("conflict requires two entities")
	}
	if c.EntityA == c.EntityB {
		return fmt.Errorf("an entity cannot conflict with itself")
	}
	if !c.Type.ValidFor(c.Kind) {
		return fmt.Errorf("conflict type %s is not valid for %s conflicts", c.Type, c.Kind)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence_score must be between 0 and 1 (got %v)", c.Confidence)
	}
	return nil
}

// Involves reports whether id is one of the two conflicting entities.
func (c *Conflict) Involves(id string) bool {
	return c.EntityA == id || c.EntityB == id
}

// PairKey orders two entity IDs so that {A,B} and {B,A} compare equal.
func PairKey(a, b string) (lo, hi string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// PairFingerprint combines the content hashes of two entities into one
// order-independent fingerprint.
func PairFingerprint(idA, hashA, idB, hashB string) string {
	left, right := idA+":"+hashA, idB+":"+hashB
	if right < left {
		left, right = right, left
	}
	h := sha256.New()
	h.Write([]byte(left))
	h.Write([]byte{0})
	h.Write([]byte(right))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ConflictFilter narrows ListConflicts.
type ConflictFilter struct {
	Kind     *ConflictKind
	OpenOnly bool
	EntityID string
}
