package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var decisionCmd = &cobra.Command{
	Use:     "decision",
	Aliases: []string{"dec"},
	Short:   "Manage decisions",
}

var decisionCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Record a new decision",
	Long: `Record a new decision. It starts STABLE at full health, version 1.

Use --form for an interactive form instead of flags.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if useForm, _ := cmd.Flags().GetBool("form"); useForm {
			runDecisionForm()
			return
		}

		title, _ := cmd.Flags().GetString("title")
		if len(args) == 1 {
			title = args[0]
		}
		description, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")
		pairs, _ := cmd.Flags().GetStringSlice("param")
		params, err := parseParams(pairs)
		FatalIfErr(invalidInput(err))

		d, err := eng.CreateDecision(rootCtx, getActor(), engine.NewDecision{
			Title:       title,
			Description: description,
			Category:    category,
			Parameters:  params,
		})
		FatalIfErr(err)
		printCreatedDecision(d)
	},
}

func printCreatedDecision(d *types.Decision) {
	if jsonOutput {
		outputJSON(d)
		return
	}
	printOK("Created decision %s: %s", ui.RenderAccent(d.ID), d.Title)
}

var decisionShowCmd = &cobra.Command{
	Use:   "show [decision-id]",
	Short: "Show a decision with its assumptions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := eng.GetDecision(rootCtx, args[0])
		FatalIfErr(err)
		assumptions, err := eng.ListAssumptions(rootCtx, types.AssumptionFilter{DecisionID: d.ID})
		FatalIfErr(err)

		if jsonOutput {
			outputJSON(struct {
				*types.Decision
				Assumptions []*types.Assumption `json:"assumptions"`
			}{d, assumptions})
			return
		}
		fmt.Print(renderDecision(d, assumptions))
	},
}

var decisionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.DecisionFilter
		if s, _ := cmd.Flags().GetString("lifecycle"); s != "" {
			l, err := parseLifecycle(s)
			FatalIfErr(invalidInput(err))
			filter.Lifecycle = &l
		}
		filter.Category, _ = cmd.Flags().GetString("category")
		filter.IncludeRetired, _ = cmd.Flags().GetBool("all")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		decisions, err := eng.ListDecisions(rootCtx, filter)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(decisions)
			return
		}
		printTable("No decisions found.",
			[]string{"ID", "TITLE", "LIFECYCLE", "HEALTH", "VERSION", "LOCK"},
			decisionRows(decisions))
	},
}

var decisionUpdateCmd = &cobra.Command{
	Use:   "update [decision-id]",
	Short: "Edit a decision",
	Long: `Edit a decision's title, description, category or parameters.

Leads edit directly. Anyone else files an edit request that a lead approves
or rejects; --justification is required then.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		patch, err := patchFromFlags(cmd)
		FatalIfErr(invalidInput(err))
		justification, _ := cmd.Flags().GetString("justification")

		res, err := eng.UpdateDecision(rootCtx, getActor(), args[0], patch, justification)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(res)
			return
		}
		if res.Request != nil {
			printOK("Filed edit request %s for %s (awaiting a lead)", ui.RenderAccent(res.Request.ID), args[0])
			return
		}
		printOK("Updated %s (version %d)", res.Decision.ID, res.Decision.Version)
	},
}

var decisionRetireCmd = &cobra.Command{
	Use:   "retire [decision-id]",
	Short: "Retire a decision (lead only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		d, err := eng.RetireDecision(rootCtx, getActor(), args[0], reason)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(d)
			return
		}
		printOK("Retired %s", d.ID)
	},
}

var decisionLockCmd = &cobra.Command{
	Use:   "lock [decision-id]",
	Short: "Place a decision under governance lock (lead only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		justification, _ := cmd.Flags().GetString("justification")
		d, err := eng.LockDecision(rootCtx, getActor(), args[0], justification)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(d)
			return
		}
		printOK("Locked %s %s", d.ID, ui.RenderLock(true))
	},
}

var decisionUnlockCmd = &cobra.Command{
	Use:   "unlock [decision-id]",
	Short: "Lift the governance lock of a decision (lead only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		justification, _ := cmd.Flags().GetString("justification")
		d, err := eng.UnlockDecision(rootCtx, getActor(), args[0], justification)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(d)
			return
		}
		printOK("Unlocked %s", d.ID)
	},
}

var decisionReviewCmd = &cobra.Command{
	Use:   "review [decision-id]",
	Short: "Mark a decision as reviewed",
	Long: `Mark a decision as reviewed. This clears a pending review reminder and
re-derives the lifecycle from the current health signal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := eng.MarkDecisionReviewed(rootCtx, getActor(), args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(d)
			return
		}
		printOK("Reviewed %s: %s %s", d.ID, ui.RenderLifecycle(d.Lifecycle), ui.RenderHealth(d.HealthSignal))
	},
}

func init() {
	decisionCreateCmd.Flags().String("title", "", "Decision title")
	decisionCreateCmd.Flags().StringP("description", "d", "", "Decision description")
	decisionCreateCmd.Flags().String("category", "", "Category")
	decisionCreateCmd.Flags().StringSlice("param", nil, "Parameter key=value (repeatable)")
	decisionCreateCmd.Flags().Bool("form", false, "Use an interactive form")

	decisionListCmd.Flags().String("lifecycle", "", "Filter by lifecycle (STABLE, UNDER_REVIEW, AT_RISK, INVALIDATED, RETIRED)")
	decisionListCmd.Flags().String("category", "", "Filter by category")
	decisionListCmd.Flags().Bool("all", false, "Include retired decisions")
	decisionListCmd.Flags().IntP("limit", "n", 0, "Maximum number of decisions")

	addPatchFlags(decisionUpdateCmd, false)
	decisionUpdateCmd.Flags().StringP("justification", "j", "", "Why the change is needed (required for non-leads)")

	decisionRetireCmd.Flags().String("reason", "", "Why the decision is retired")
	decisionLockCmd.Flags().StringP("justification", "j", "", "Why the decision is locked")
	decisionUnlockCmd.Flags().StringP("justification", "j", "", "Why the lock is lifted")

	decisionCmd.AddCommand(decisionCreateCmd, decisionShowCmd, decisionListCmd, decisionUpdateCmd,
		decisionRetireCmd, decisionLockCmd, decisionUnlockCmd, decisionReviewCmd)
	rootCmd.AddCommand(decisionCmd)
}
