package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(exitError)
	}
}

// outputJSONError writes {"error": ..., "code": ...} to stderr. The caller
// decides the exit code.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
}

// printOK prints a success line unless --quiet is set.
func printOK(format string, args ...interface{}) {
	if quietFlag {
		return
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), fmt.Sprintf(format, args...))
}

const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}

// formatParams renders parameters as sorted key=value pairs.
func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, ", ")
}

func decisionRows(decisions []*types.Decision) [][]string {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, []string{
			d.ID,
			ui.TruncateSimple(d.Title, 48),
			ui.RenderLifecycle(d.Lifecycle),
			ui.RenderHealthBar(d.HealthSignal) + " " + ui.RenderHealth(d.HealthSignal),
			fmt.Sprintf("v%d", d.Version),
			ui.RenderLock(d.GovernanceLocked),
		})
	}
	return rows
}

func renderDecision(d *types.Decision, assumptions []*types.Assumption) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", ui.RenderAccent(d.ID), d.Title)
	fmt.Fprintf(&sb, "Lifecycle: %s  Health: %s %s  Version: %d",
		ui.RenderLifecycle(d.Lifecycle), ui.RenderHealthBar(d.HealthSignal), ui.RenderHealth(d.HealthSignal), d.Version)
	if d.GovernanceLocked {
		fmt.Fprintf(&sb, "  %s", ui.RenderLock(true))
	}
	sb.WriteString("\n")
	if d.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", ui.RenderCategory(d.Category))
	}
	if len(d.Parameters) > 0 {
		fmt.Fprintf(&sb, "Parameters: %s\n", formatParams(d.Parameters))
	}
	fmt.Fprintf(&sb, "Created: %s by %s  Last reviewed: %s\n",
		formatTime(d.CreatedAt), d.CreatedBy, formatTimePtr(d.LastReviewedAt))
	if d.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(ui.Indent(ui.WrapText(d.Description, 76), "  "))
		sb.WriteString("\n")
	}
	if len(assumptions) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", ui.RenderCategory("Assumptions"))
		for _, a := range assumptions {
			fmt.Fprintf(&sb, "  %s %s %s\n", ui.RenderAssumptionStatus(a.Status), ui.RenderMuted(a.ID), a.Description)
		}
	}
	return sb.String()
}

func assumptionRows(assumptions []*types.Assumption) [][]string {
	rows := make([][]string, 0, len(assumptions))
	for _, a := range assumptions {
		owner := a.OwnerDecisionID
		if owner == "" {
			owner = "-"
		}
		rows = append(rows, []string{
			a.ID,
			ui.RenderAssumptionStatus(a.Status),
			string(a.Scope),
			owner,
			ui.TruncateSimple(a.Description, 56),
		})
	}
	return rows
}

func conflictRows(conflicts []*types.Conflict) [][]string {
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		state := ui.RenderWarn("open")
		if !c.IsOpen() {
			state = ui.RenderMuted(strings.ToLower(string(c.Resolution)))
		}
		rows = append(rows, []string{
			c.ID,
			string(c.Kind),
			c.EntityA + " ↔ " + c.EntityB,
			string(c.Type),
			ui.RenderConfidence(c.Confidence),
			state,
		})
	}
	return rows
}

func renderConflict(c *types.Conflict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s conflict (%s)\n", ui.RenderAccent(c.ID), c.Kind, c.Type)
	fmt.Fprintf(&sb, "Between: %s and %s\n", c.EntityA, c.EntityB)
	fmt.Fprintf(&sb, "Confidence: %s  Detected: %s\n", ui.RenderConfidence(c.Confidence), formatTime(c.DetectedAt))
	if c.Explanation != "" {
		fmt.Fprintf(&sb, "\n%s\n", ui.Indent(ui.WrapText(c.Explanation, 76), "  "))
	}
	if !c.IsOpen() {
		fmt.Fprintf(&sb, "\nResolved %s by %s: %s\n", formatTimePtr(c.ResolvedAt), c.ResolvedBy, c.Resolution)
		if c.ResolutionNotes != "" {
			fmt.Fprintf(&sb, "  %s\n", c.ResolutionNotes)
		}
	}
	return sb.String()
}

func editRequestRows(reqs []*types.EditRequest) [][]string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, []string{
			r.ID,
			r.DecisionID,
			string(r.Status),
			r.Requester,
			ui.TruncateSimple(r.Justification, 40),
			formatTime(r.CreatedAt),
		})
	}
	return rows
}

// describePatch summarizes a patch for request listings.
func describePatch(p types.DecisionPatch) string {
	var parts []string
	if p.Title != nil {
		parts = append(parts, fmt.Sprintf("title=%q", *p.Title))
	}
	if p.Description != nil {
		parts = append(parts, "description")
	}
	if p.Category != nil {
		parts = append(parts, fmt.Sprintf("category=%q", *p.Category))
	}
	if len(p.Parameters) > 0 {
		parts = append(parts, "parameters("+formatParams(p.Parameters)+")")
	}
	if len(p.LinkAssumptions) > 0 {
		parts = append(parts, "link "+strings.Join(p.LinkAssumptions, ","))
	}
	if len(p.UnlinkAssumptions) > 0 {
		parts = append(parts, "unlink "+strings.Join(p.UnlinkAssumptions, ","))
	}
	return strings.Join(parts, "; ")
}

// printTable prints rows under headers, or a muted note when there are none.
func printTable(empty string, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println(ui.RenderMuted(empty))
		return
	}
	fmt.Println(ui.Table(headers, rows))
}
