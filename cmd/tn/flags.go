package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/timeparsing"
	"github.com/steveyegge/tenet/internal/types"
)

// parseParams turns key=value pairs into a parameter map. An empty value
// is kept; in a patch it removes the key.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", p)
		}
		params[k] = strings.TrimSpace(v)
	}
	return params, nil
}

func normalizeEnum(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}

func parseLifecycle(s string) (types.Lifecycle, error) {
	l := types.Lifecycle(normalizeEnum(s))
	if !l.IsValid() {
		return "", fmt.Errorf("invalid lifecycle %q", s)
	}
	return l, nil
}

func parseAssumptionStatus(s string) (types.AssumptionStatus, error) {
	st := types.AssumptionStatus(normalizeEnum(s))
	if !st.IsValid() {
		return "", fmt.Errorf("invalid status %q (want VALID, SHAKY or BROKEN)", s)
	}
	return st, nil
}

func parseScope(s string) (types.AssumptionScope, error) {
	sc := types.AssumptionScope(normalizeEnum(s))
	if !sc.IsValid() {
		return "", fmt.Errorf("invalid scope %q (want UNIVERSAL or DECISION_SPECIFIC)", s)
	}
	return sc, nil
}

func parseConstraintType(s string) (types.ConstraintType, error) {
	ct := types.ConstraintType(normalizeEnum(s))
	if !ct.IsValid() {
		return "", fmt.Errorf("invalid constraint type %q", s)
	}
	return ct, nil
}

func parseAction(s string) types.ResolutionAction {
	return types.ResolutionAction(normalizeEnum(s))
}

func parseKind(s string) (types.ConflictKind, error) {
	k := types.ConflictKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("invalid conflict kind %q (want assumption or decision)", s)
	}
	return k, nil
}

func parseEditStatus(s string) (types.EditRequestStatus, error) {
	st := types.EditRequestStatus(normalizeEnum(s))
	if !st.IsValid() {
		return "", fmt.Errorf("invalid request status %q", s)
	}
	return st, nil
}

// sinceFlag reads --since as a compact duration, date or natural language
// expression. The zero time means no filter.
func sinceFlag(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("since")
	if s == "" {
		return time.Time{}, nil
	}
	t, err := timeparsing.ParseSince(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	return t, nil
}

// patchFromFlags builds a decision patch from the update/request flags. Only
// flags the user set end up in the patch.
func patchFromFlags(cmd *cobra.Command) (types.DecisionPatch, error) {
	var patch types.DecisionPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		patch.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		patch.Category = &v
	}
	pairs, _ := flags.GetStringSlice("param")
	params, err := parseParams(pairs)
	if err != nil {
		return patch, err
	}
	patch.Parameters = params
	if flags.Lookup("link") != nil {
		patch.LinkAssumptions, _ = flags.GetStringSlice("link")
		patch.UnlinkAssumptions, _ = flags.GetStringSlice("unlink")
	}
	return patch, nil
}

// addPatchFlags registers the flags patchFromFlags reads.
func addPatchFlags(cmd *cobra.Command, withLinks bool) {
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("description", "", "New description")
	cmd.Flags().String("category", "", "New category")
	cmd.Flags().StringSlice("param", nil, "Parameter key=value (repeatable; empty value removes the key)")
	if withLinks {
		cmd.Flags().StringSlice("link", nil, "Assumption IDs to link when the edit is applied")
		cmd.Flags().StringSlice("unlink", nil, "Assumption IDs to unlink when the edit is applied")
	}
}
