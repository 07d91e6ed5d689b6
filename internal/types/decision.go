// Package types defines the core data structures of the decision engine.
package types

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
)

// Lifecycle is the derived state of a decision.
type Lifecycle string

const (
	LifecycleStable      Lifecycle = "STABLE"
	LifecycleUnderReview Lifecycle = "UNDER_REVIEW"
	LifecycleAtRisk      Lifecycle = "AT_RISK"
	LifecycleInvalidated Lifecycle = "INVALIDATED"
	LifecycleRetired     Lifecycle = "RETIRED"
)

// IsValid checks if the lifecycle value is valid
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleStable, LifecycleUnderReview, LifecycleAtRisk, LifecycleInvalidated, LifecycleRetired:
		return true
	}
	return false
}

// MaxHealth is the health signal of a decision with nothing wrong with it.
const MaxHealth = 100

// Decision is a tracked organizational choice.
type Decision struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Category         string            `json:"category,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Lifecycle        Lifecycle         `json:"lifecycle"`
	HealthSignal     int               `json:"health_signal"`
	Version          int               `json:"version"`
	GovernanceLocked bool              `json:"governance_locked"`
	LastReviewedAt   *time.Time        `json:"last_reviewed_at,omitempty"`
	CreatedBy        string            `json:"created_by,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Validate checks if the decision has valid field values
func (d *Decision) Validate() error {
	if len(d.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(d.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(d.Title))
	}
	if !d.Lifecycle.IsValid() {
		return fmt.Errorf("invalid lifecycle: %s", d.Lifecycle)
	}
	if d.HealthSignal < 0 || d.HealthSignal > MaxHealth {
		return fmt.Errorf("health_signal must be between 0 and %d (got %d)", MaxHealth, d.HealthSignal)
	}
	if d.Version < 1 {
		return fmt.Errorf("version must be at least 1 (got %d)", d.Version)
	}
	for k := range d.Parameters {
		if k == "" {
			return fmt.Errorf("parameter keys must be non-empty")
		}
	}
	return nil
}

// IsRetired reports whether the decision reached its terminal state.
func (d *Decision) IsRetired() bool {
	return d.Lifecycle == LifecycleRetired
}

// ContentHash hashes the fields a conflict classifier looks at. Lifecycle and
// health are left out so that governance actions do not change the hash.
func (d *Decision) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(d.Title))
	h.Write([]byte{0})
	h.Write([]byte(d.Description))
	h.Write([]byte{0})
	h.Write([]byte(d.Category))
	h.Write([]byte{0})
	for _, k := range sortedKeys(d.Parameters) {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(d.Parameters[k]))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Snapshot captures the replayable field state of the decision.
func (d *Decision) Snapshot() DecisionSnapshot {
	return DecisionSnapshot{
		Title:            d.Title,
		Description:      d.Description,
		Category:         d.Category,
		Parameters:       cloneParams(d.Parameters),
		Lifecycle:        d.Lifecycle,
		HealthSignal:     d.HealthSignal,
		GovernanceLocked: d.GovernanceLocked,
	}
}

// DecisionSnapshot is the full field state stored on version-bearing events.
type DecisionSnapshot struct {
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Category         string            `json:"category,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Lifecycle        Lifecycle         `json:"lifecycle"`
	HealthSignal     int               `json:"health_signal"`
	GovernanceLocked bool              `json:"governance_locked"`
}

// DecisionPatch is a partial update of a decision. Nil pointers leave the
// field unchanged. Parameters are merged key by key; an empty value removes
// the key. The link sets apply to a lead's direct edit and to an approved
// edit request alike; a patch that only moves links still bumps the version.
type DecisionPatch struct {
	Title             *string           `json:"title,omitempty"`
	Description       *string           `json:"description,omitempty"`
	Category          *string           `json:"category,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	LinkAssumptions   []string          `json:"link_assumptions,omitempty"`
	UnlinkAssumptions []string          `json:"unlink_assumptions,omitempty"`
}

// IsEmpty reports whether the patch carries no change at all.
func (p DecisionPatch) IsEmpty() bool {
	return !p.HasFieldChanges() && len(p.LinkAssumptions) == 0 && len(p.UnlinkAssumptions) == 0
}

// HasFieldChanges reports whether the patch touches any decision field.
func (p DecisionPatch) HasFieldChanges() bool {
	return p.Title != nil || p.Description != nil || p.Category != nil || len(p.Parameters) > 0
}

// Validate checks the patch on its own, without the target decision.
func (p DecisionPatch) Validate() error {
	if p.Title != nil {
		if len(*p.Title) == 0 {
			return fmt.Errorf("title cannot be empty")
		}
		if len(*p.Title) > 500 {
			return fmt.Errorf("title must be 500 characters or less (got %d)", len(*p.Title))
		}
	}
	for k := range p.Parameters {
		if k == "" {
			return fmt.Errorf("parameter keys must be non-empty")
		}
	}
	seen := make(map[string]bool, len(p.LinkAssumptions))
	for _, id := range p.LinkAssumptions {
		seen[id] = true
	}
	for _, id := range p.UnlinkAssumptions {
		if seen[id] {
			return fmt.Errorf("assumption %s is both linked and unlinked", id)
		}
	}
	return nil
}

// FieldChange records one changed field. Parameters are reported per key as
// "parameters.<key>".
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Apply applies the field part of the patch to d and returns what changed.
func (p DecisionPatch) Apply(d *Decision) []FieldChange {
	var changes []FieldChange
	set := func(field string, dst *string, v *string) {
		if v == nil || *dst == *v {
			return
		}
		changes = append(changes, FieldChange{Field: field, Old: *dst, New: *v})
		*dst = *v
	}
	set("title", &d.Title, p.Title)
	set("description", &d.Description, p.Description)
	set("category", &d.Category, p.Category)

	for _, k := range sortedKeys(p.Parameters) {
		v := p.Parameters[k]
		old, ok := d.Parameters[k]
		switch {
		case v == "" && ok:
			delete(d.Parameters, k)
		case v != "" && v != old:
			if d.Parameters == nil {
				d.Parameters = make(map[string]string)
			}
			d.Parameters[k] = v
		default:
			continue
		}
		changes = append(changes, FieldChange{Field: "parameters." + k, Old: old, New: v})
	}
	return changes
}

// DecisionFilter narrows ListDecisions.
type DecisionFilter struct {
	Lifecycle      *Lifecycle
	Category       string
	IncludeRetired bool
	Limit          int
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneParams(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
