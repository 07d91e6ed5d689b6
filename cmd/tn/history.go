package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/history"
	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Read a decision's history",
	Long: `Every change to a decision is an immutable event. These commands read
projections of that log: the full timeline, the field-changing versions, the
relation changes and the health changes.`,
}

var historyTimelineCmd = &cobra.Command{
	Use:   "timeline [decision-id]",
	Short: "Show every event of a decision, newest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, err := sinceFlag(cmd)
		FatalIfErr(invalidInput(err))
		events, err := eng.Timeline(rootCtx, args[0])
		FatalIfErr(err)
		if !since.IsZero() {
			events = history.Since(events, since)
		}
		if jsonOutput {
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			fmt.Println(ui.RenderMuted("No events."))
			return
		}

		var sb strings.Builder
		for _, ev := range events {
			version := ""
			if ev.Version > 0 {
				version = fmt.Sprintf(" v%d", ev.Version)
			}
			fmt.Fprintf(&sb, "%s %s%s %s\n", ui.RenderMuted(formatTime(ev.CreatedAt)),
				ui.RenderAccent(string(ev.Type())), version, ui.RenderMuted("by "+ev.Actor))
			if desc := describeEvent(ev.Payload); desc != "" {
				sb.WriteString(ui.Indent(desc, "    "))
				sb.WriteString("\n")
			}
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		FatalIfErr(ui.ToPager(sb.String(), ui.PagerOptions{NoPager: noPager}))
	},
}

var historyVersionsCmd = &cobra.Command{
	Use:   "versions [decision-id]",
	Short: "Show the field-changing versions of a decision",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		versions, err := eng.Versions(rootCtx, args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(versions)
			return
		}
		rows := make([][]string, 0, len(versions))
		for _, v := range versions {
			rows = append(rows, []string{
				fmt.Sprintf("v%d", v.Number),
				string(v.EventType),
				v.Actor,
				formatTime(v.CreatedAt),
				ui.TruncateSimple(describeChanges(v.Changes), 60),
			})
		}
		printTable("No versions.", []string{"VERSION", "EVENT", "ACTOR", "AT", "CHANGES"}, rows)
	},
}

var historyRelationsCmd = &cobra.Command{
	Use:   "relations [decision-id]",
	Short: "Show links and unlinks of assumptions and dependencies",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, err := sinceFlag(cmd)
		FatalIfErr(invalidInput(err))
		changes, err := eng.RelationHistory(rootCtx, args[0])
		FatalIfErr(err)
		if !since.IsZero() {
			kept := changes[:0]
			for _, c := range changes {
				if !c.CreatedAt.Before(since) {
					kept = append(kept, c)
				}
			}
			changes = kept
		}
		if jsonOutput {
			outputJSON(changes)
			return
		}
		rows := make([][]string, 0, len(changes))
		for _, c := range changes {
			op := ui.RenderPass("+")
			if !c.Linked {
				op = ui.RenderFail("-")
			}
			rows = append(rows, []string{op, string(c.Relation.Kind), c.Relation.RelatedID, c.Actor,
				formatTime(c.CreatedAt), c.Relation.Reason})
		}
		printTable("No relation changes.", []string{"", "KIND", "RELATED", "ACTOR", "AT", "REASON"}, rows)
	},
}

var historyHealthCmd = &cobra.Command{
	Use:   "health [decision-id]",
	Short: "Show how a decision's health changed over time",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, err := sinceFlag(cmd)
		FatalIfErr(invalidInput(err))
		changes, err := eng.HealthHistory(rootCtx, args[0])
		FatalIfErr(err)
		if !since.IsZero() {
			kept := changes[:0]
			for _, c := range changes {
				if !c.CreatedAt.Before(since) {
					kept = append(kept, c)
				}
			}
			changes = kept
		}
		if jsonOutput {
			outputJSON(changes)
			return
		}
		rows := make([][]string, 0, len(changes))
		for _, c := range changes {
			rows = append(rows, []string{
				formatTime(c.CreatedAt),
				fmt.Sprintf("%s → %s", ui.RenderHealth(c.OldHealth), ui.RenderHealth(c.NewHealth)),
				formatDelta(c.HealthChange),
				fmt.Sprintf("%s → %s", ui.RenderLifecycle(c.OldLifecycle), ui.RenderLifecycle(c.NewLifecycle)),
				string(c.TriggeredBy),
			})
		}
		printTable("No health changes.", []string{"AT", "HEALTH", "CHANGE", "LIFECYCLE", "TRIGGER"}, rows)
	},
}

var historyReplayCmd = &cobra.Command{
	Use:   "replay [decision-id]",
	Short: "Rebuild a decision's state from its history",
	Long: `Rebuild a decision's state from its event log alone. With --verify the
result is compared with the stored record and any difference is an error.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if verify, _ := cmd.Flags().GetBool("verify"); verify {
			err := eng.VerifyReplay(rootCtx, args[0])
			if errors.Is(err, engine.ErrReplayMismatch) && !jsonOutput {
				fmt.Println(ui.RenderFail("✗ history does not reproduce the stored decision"))
			}
			FatalIfErr(err)
			if jsonOutput {
				outputJSON(map[string]interface{}{"decision_id": args[0], "consistent": true})
				return
			}
			printOK("History of %s reproduces the stored decision", args[0])
			return
		}

		state, err := eng.Replay(rootCtx, args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(state)
			return
		}
		fmt.Print(renderState(state))
	},
}

func renderState(s *history.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (version %d)\n", s.Title, s.Version)
	fmt.Fprintf(&sb, "Lifecycle: %s  Health: %s", ui.RenderLifecycle(s.Lifecycle), ui.RenderHealth(s.HealthSignal))
	if s.GovernanceLocked {
		fmt.Fprintf(&sb, "  %s", ui.RenderLock(true))
	}
	sb.WriteString("\n")
	if s.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", s.Category)
	}
	if len(s.Parameters) > 0 {
		fmt.Fprintf(&sb, "Parameters: %s\n", formatParams(s.Parameters))
	}
	if s.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", ui.Indent(ui.WrapText(s.Description, 76), "  "))
	}
	return sb.String()
}

func formatDelta(d int) string {
	switch {
	case d > 0:
		return ui.RenderPass(fmt.Sprintf("+%d", d))
	case d < 0:
		return ui.RenderFail(fmt.Sprintf("%d", d))
	}
	return "0"
}

func describeChanges(changes []types.FieldChange) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %q → %q", c.Field, c.Old, c.New))
	}
	return strings.Join(parts, "; ")
}

// describeEvent is the one-line detail shown under a timeline entry.
func describeEvent(p types.Payload) string {
	switch e := p.(type) {
	case types.Created:
		return fmt.Sprintf("%q", e.Snapshot.Title)
	case types.FieldUpdated:
		s := describeChanges(e.Changes)
		if e.Justification != "" {
			s += " (" + e.Justification + ")"
		}
		return s
	case types.GovernanceLock:
		return e.Justification
	case types.GovernanceUnlock:
		return e.Justification
	case types.EditRequested:
		return fmt.Sprintf("%s by %s: %s", e.RequestID, e.Requester, describePatch(e.Changes))
	case types.EditApproved:
		s := fmt.Sprintf("%s from %s", e.RequestID, e.Requester)
		if len(e.Changes) > 0 {
			s += ": " + describeChanges(e.Changes)
		}
		if len(e.Linked) > 0 {
			s += "; linked " + strings.Join(e.Linked, ",")
		}
		if len(e.Unlinked) > 0 {
			s += "; unlinked " + strings.Join(e.Unlinked, ",")
		}
		return s
	case types.EditRejected:
		s := fmt.Sprintf("%s from %s", e.RequestID, e.Requester)
		if e.Note != "" {
			s += ": " + e.Note
		}
		return s
	case types.AssumptionConflictResolved:
		parts := []string{fmt.Sprintf("%s %s (%s vs %s)", e.ConflictID, e.Action, e.AssumptionA, e.AssumptionB)}
		for _, sc := range e.StatusChanges {
			parts = append(parts, fmt.Sprintf("%s %s → %s", sc.AssumptionID, sc.Old, sc.New))
		}
		return strings.Join(parts, "; ")
	case types.DecisionConflictResolved:
		s := fmt.Sprintf("%s %s (%s vs %s)", e.ConflictID, e.Action, e.DecisionA, e.DecisionB)
		if e.OldLifecycle != e.NewLifecycle {
			s += fmt.Sprintf("; %s → %s", e.OldLifecycle, e.NewLifecycle)
		}
		return s
	case types.RelationLinked:
		return fmt.Sprintf("+ %s %s", e.Kind, e.RelatedID)
	case types.RelationUnlinked:
		return fmt.Sprintf("- %s %s", e.Kind, e.RelatedID)
	case types.HealthEvaluated:
		return fmt.Sprintf("%d → %d, %s → %s (%s)", e.OldHealth, e.NewHealth, e.OldLifecycle, e.NewLifecycle, e.TriggeredBy)
	}
	return ""
}

func init() {
	historyTimelineCmd.Flags().String("since", "", "Only events after this time (e.g. 7d, 2026-01-02, \"last monday\")")
	historyTimelineCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")
	historyRelationsCmd.Flags().String("since", "", "Only changes after this time")
	historyHealthCmd.Flags().String("since", "", "Only changes after this time")
	historyReplayCmd.Flags().Bool("verify", false, "Compare the replayed state with the stored decision")

	historyCmd.AddCommand(historyTimelineCmd, historyVersionsCmd, historyRelationsCmd, historyHealthCmd, historyReplayCmd)
	rootCmd.AddCommand(historyCmd)
}
