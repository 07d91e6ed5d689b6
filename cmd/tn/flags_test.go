package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/types"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"db=postgres", " region = eu-west-1 ", "legacy="})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	want := map[string]string{"db": "postgres", "region": "eu-west-1", "legacy": ""}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("param %s = %q, want %q", k, got[k], v)
		}
	}

	if p, err := parseParams(nil); err != nil || p != nil {
		t.Errorf("parseParams(nil) = %v, %v", p, err)
	}
	for _, bad := range []string{"novalue", "=x", " =x"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if l, err := parseLifecycle("at-risk"); err != nil || l != types.LifecycleAtRisk {
		t.Errorf("parseLifecycle(at-risk) = %q, %v", l, err)
	}
	if _, err := parseLifecycle("healthy"); err == nil {
		t.Error("parseLifecycle(healthy) should fail")
	}
	if s, err := parseAssumptionStatus("shaky"); err != nil || s != types.StatusShaky {
		t.Errorf("parseAssumptionStatus(shaky) = %q, %v", s, err)
	}
	if sc, err := parseScope("decision-specific"); err != nil || sc != types.ScopeDecisionSpecific {
		t.Errorf("parseScope = %q, %v", sc, err)
	}
	if ct, err := parseConstraintType("Budget"); err != nil || ct != types.ConstraintBudget {
		t.Errorf("parseConstraintType = %q, %v", ct, err)
	}
	if k, err := parseKind("Decision"); err != nil || k != types.KindDecision {
		t.Errorf("parseKind = %q, %v", k, err)
	}
	if _, err := parseKind("constraint"); err == nil {
		t.Error("parseKind(constraint) should fail")
	}
	if st, err := parseEditStatus("pending"); err != nil || st != types.EditStatusPending {
		t.Errorf("parseEditStatus = %q, %v", st, err)
	}
	if a := parseAction("keep-both"); a != types.ActionKeepBoth {
		t.Errorf("parseAction(keep-both) = %q", a)
	}
}

func newSinceCommand(t *testing.T, value string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("since", "", "")
	if value != "" {
		if err := cmd.Flags().Set("since", value); err != nil {
			t.Fatal(err)
		}
	}
	return cmd
}

func TestSinceFlag(t *testing.T) {
	got, err := sinceFlag(newSinceCommand(t, ""))
	if err != nil || !got.IsZero() {
		t.Fatalf("empty --since = %v, %v", got, err)
	}

	before := time.Now()
	got, err = sinceFlag(newSinceCommand(t, "2d"))
	if err != nil {
		t.Fatalf("sinceFlag(2d): %v", err)
	}
	if !got.Before(before) {
		t.Errorf("unsigned duration should look back, got %v (now %v)", got, before)
	}
	if d := before.Sub(got); d < 47*time.Hour || d > 49*time.Hour {
		t.Errorf("2d back = %v", d)
	}

	got, err = sinceFlag(newSinceCommand(t, "2026-01-02"))
	if err != nil {
		t.Fatalf("sinceFlag(date): %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.January || got.Day() != 2 {
		t.Errorf("date = %v", got)
	}

	if _, err := sinceFlag(newSinceCommand(t, "xyzzy")); err == nil {
		t.Error("garbage --since should fail")
	}
}

func TestPatchFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addPatchFlags(cmd, true)
	for flag, value := range map[string]string{
		"title":  "Use Postgres",
		"param":  "db=postgres",
		"link":   "asm-1,asm-2",
		"unlink": "asm-3",
	} {
		if err := cmd.Flags().Set(flag, value); err != nil {
			t.Fatal(err)
		}
	}

	patch, err := patchFromFlags(cmd)
	if err != nil {
		t.Fatalf("patchFromFlags: %v", err)
	}
	if patch.Title == nil || *patch.Title != "Use Postgres" {
		t.Errorf("title = %v", patch.Title)
	}
	if patch.Description != nil || patch.Category != nil {
		t.Error("unset flags must stay nil")
	}
	if patch.Parameters["db"] != "postgres" {
		t.Errorf("params = %v", patch.Parameters)
	}
	if len(patch.LinkAssumptions) != 2 || len(patch.UnlinkAssumptions) != 1 {
		t.Errorf("link sets = %v / %v", patch.LinkAssumptions, patch.UnlinkAssumptions)
	}
}

func TestPatchFromFlagsEmptyTitleIsKept(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addPatchFlags(cmd, false)
	if err := cmd.Flags().Set("title", ""); err != nil {
		t.Fatal(err)
	}
	patch, err := patchFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	// the engine rejects it; the CLI must not silently drop it
	if patch.Title == nil {
		t.Fatal("explicit empty title should be in the patch")
	}
	if patch.LinkAssumptions != nil {
		t.Error("link flags are not registered here")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a=1, ,b=2,")
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}
