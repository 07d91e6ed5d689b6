package main

import (
	"strings"
	"testing"

	"github.com/steveyegge/tenet/internal/types"
)

func TestFormatParams(t *testing.T) {
	got := formatParams(map[string]string{"region": "eu", "db": "postgres"})
	if got != "db=postgres, region=eu" {
		t.Errorf("formatParams = %q", got)
	}
	if formatParams(nil) != "" {
		t.Error("formatParams(nil) should be empty")
	}
}

func TestDescribePatch(t *testing.T) {
	title := "New title"
	got := describePatch(types.DecisionPatch{
		Title:           &title,
		Parameters:      map[string]string{"db": "postgres"},
		LinkAssumptions: []string{"asm-1"},
	})
	for _, want := range []string{`title="New title"`, "parameters(db=postgres)", "link asm-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("describePatch = %q, missing %q", got, want)
		}
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload types.Payload
		want    []string
	}{
		{
			name:    "created",
			payload: types.Created{Snapshot: types.DecisionSnapshot{Title: "Adopt Go"}},
			want:    []string{`"Adopt Go"`},
		},
		{
			name: "field updated",
			payload: types.FieldUpdated{
				Changes:       []types.FieldChange{{Field: "title", Old: "a", New: "b"}},
				Justification: "typo",
			},
			want: []string{`title: "a" → "b"`, "(typo)"},
		},
		{
			name: "assumption conflict resolved",
			payload: types.AssumptionConflictResolved{
				ConflictID: "cfl-1", Action: types.ActionValidateA, AssumptionA: "asm-a", AssumptionB: "asm-b",
				StatusChanges: []types.StatusChange{{AssumptionID: "asm-b", Old: types.StatusValid, New: types.StatusBroken}},
			},
			want: []string{"cfl-1 VALIDATE_A", "asm-b VALID → BROKEN"},
		},
		{
			name: "decision conflict resolved",
			payload: types.DecisionConflictResolved{
				ConflictID: "cfl-2", Action: types.ActionPrioritizeA, DecisionA: "dec-a", DecisionB: "dec-b",
				OldLifecycle: types.LifecycleStable, NewLifecycle: types.LifecycleUnderReview,
			},
			want: []string{"PRIORITIZE_A", "STABLE → UNDER_REVIEW"},
		},
		{
			name:    "relation linked",
			payload: types.RelationLinked{Relation: types.Relation{Kind: types.RelationAssumption, RelatedID: "asm-1"}},
			want:    []string{"+ assumption asm-1"},
		},
		{
			name: "health evaluated",
			payload: types.HealthEvaluated{
				OldHealth: 100, NewHealth: 50,
				OldLifecycle: types.LifecycleStable, NewLifecycle: types.LifecycleAtRisk,
				TriggeredBy: types.TriggerAssumptionStatusChange,
			},
			want: []string{"100 → 50", "assumption_status_change"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeEvent(tt.payload)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("describeEvent = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestFormatTimePtr(t *testing.T) {
	if formatTimePtr(nil) != "never" {
		t.Error("nil time should render as never")
	}
}
