package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var assumptionCmd = &cobra.Command{
	Use:     "assumption",
	Aliases: []string{"asm"},
	Short:   "Manage assumptions and their links to decisions",
}

var assumptionCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Record a new assumption",
	Long: `Record a new assumption. It starts VALID.

A UNIVERSAL assumption can back any number of decisions. A DECISION_SPECIFIC
assumption belongs to the decision given with --decision and can only ever be
linked to it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scopeStr, _ := cmd.Flags().GetString("scope")
		scope, err := parseScope(scopeStr)
		FatalIfErr(invalidInput(err))
		linkTo, _ := cmd.Flags().GetString("decision")

		a, err := eng.CreateAssumption(rootCtx, getActor(), args[0], scope, linkTo)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(a)
			return
		}
		msg := fmt.Sprintf("Created assumption %s", ui.RenderAccent(a.ID))
		if linkTo != "" {
			msg += " linked to " + linkTo
		}
		printOK("%s", msg)
	},
}

var assumptionShowCmd = &cobra.Command{
	Use:   "show [assumption-id]",
	Short: "Show an assumption",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := eng.GetAssumption(rootCtx, args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(a)
			return
		}
		fmt.Printf("%s %s\n", ui.RenderAccent(a.ID), ui.RenderAssumptionStatus(a.Status))
		fmt.Printf("Scope: %s", a.Scope)
		if a.OwnerDecisionID != "" {
			fmt.Printf("  Owner: %s", a.OwnerDecisionID)
		}
		fmt.Printf("\nUpdated: %s\n\n", formatTime(a.UpdatedAt))
		fmt.Println(ui.Indent(ui.WrapText(a.Description, 76), "  "))
	},
}

var assumptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assumptions",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.AssumptionFilter
		filter.DecisionID, _ = cmd.Flags().GetString("decision")
		if s, _ := cmd.Flags().GetString("scope"); s != "" {
			scope, err := parseScope(s)
			FatalIfErr(invalidInput(err))
			filter.Scope = &scope
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := parseAssumptionStatus(s)
			FatalIfErr(invalidInput(err))
			filter.Status = &st
		}

		assumptions, err := eng.ListAssumptions(rootCtx, filter)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(assumptions)
			return
		}
		printTable("No assumptions found.",
			[]string{"ID", "STATUS", "SCOPE", "OWNER", "DESCRIPTION"},
			assumptionRows(assumptions))
	},
}

var assumptionUpdateCmd = &cobra.Command{
	Use:   "update [assumption-id]",
	Short: "Change an assumption's description or status",
	Long: `Change an assumption's description or status. A status change
re-evaluates the health of every decision that rests on the assumption.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch types.AssumptionPatch
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch.Description = &v
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := parseAssumptionStatus(s)
			FatalIfErr(invalidInput(err))
			patch.Status = &st
		}
		a, err := eng.UpdateAssumption(rootCtx, getActor(), args[0], patch)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(a)
			return
		}
		printOK("Updated %s: %s", a.ID, ui.RenderAssumptionStatus(a.Status))
	},
}

// assumptionStatusCmd is shorthand for update --status.
var assumptionStatusCmd = &cobra.Command{
	Use:   "status [assumption-id] [VALID|SHAKY|BROKEN]",
	Short: "Set an assumption's status",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := parseAssumptionStatus(args[1])
		FatalIfErr(invalidInput(err))
		a, err := eng.UpdateAssumption(rootCtx, getActor(), args[0], types.AssumptionPatch{Status: &st})
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(a)
			return
		}
		printOK("%s is now %s", a.ID, ui.RenderAssumptionStatus(a.Status))
	},
}

var assumptionDeleteCmd = &cobra.Command{
	Use:   "delete [assumption-id]",
	Short: "Delete an assumption",
	Long: `Delete an assumption. Deleting one that still backs decisions fails
unless --unlink is given, which unlinks it from every decision first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		unlinkFirst, _ := cmd.Flags().GetBool("unlink")
		FatalIfErr(eng.DeleteAssumption(rootCtx, getActor(), args[0], unlinkFirst))
		if jsonOutput {
			outputJSON(map[string]string{"deleted": args[0]})
			return
		}
		printOK("Deleted %s", args[0])
	},
}

var assumptionLinkCmd = &cobra.Command{
	Use:   "link [decision-id] [assumption-id]",
	Short: "Link an assumption to a decision",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		FatalIfErr(eng.LinkAssumption(rootCtx, getActor(), args[0], args[1], reason))
		if jsonOutput {
			outputJSON(map[string]string{"decision_id": args[0], "assumption_id": args[1], "status": "linked"})
			return
		}
		printOK("Linked %s → %s", args[1], args[0])
	},
}

var assumptionUnlinkCmd = &cobra.Command{
	Use:   "unlink [decision-id] [assumption-id]",
	Short: "Unlink an assumption from a decision",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		FatalIfErr(eng.UnlinkAssumption(rootCtx, getActor(), args[0], args[1], reason))
		if jsonOutput {
			outputJSON(map[string]string{"decision_id": args[0], "assumption_id": args[1], "status": "unlinked"})
			return
		}
		printOK("Unlinked %s from %s", args[1], args[0])
	},
}

func init() {
	assumptionCreateCmd.Flags().String("scope", string(types.ScopeUniversal), "UNIVERSAL or DECISION_SPECIFIC")
	assumptionCreateCmd.Flags().String("decision", "", "Decision to link to (owner for DECISION_SPECIFIC)")

	assumptionListCmd.Flags().String("decision", "", "Only assumptions linked to this decision")
	assumptionListCmd.Flags().String("scope", "", "Filter by scope")
	assumptionListCmd.Flags().String("status", "", "Filter by status")

	assumptionUpdateCmd.Flags().String("description", "", "New description")
	assumptionUpdateCmd.Flags().String("status", "", "New status ("+strings.Join([]string{
		string(types.StatusValid), string(types.StatusShaky), string(types.StatusBroken)}, ", ")+")")

	assumptionDeleteCmd.Flags().Bool("unlink", false, "Unlink from every decision first")
	assumptionLinkCmd.Flags().String("reason", "", "Why the link is added")
	assumptionUnlinkCmd.Flags().String("reason", "", "Why the link is removed")

	assumptionCmd.AddCommand(assumptionCreateCmd, assumptionShowCmd, assumptionListCmd, assumptionUpdateCmd,
		assumptionStatusCmd, assumptionDeleteCmd, assumptionLinkCmd, assumptionUnlinkCmd)
	rootCmd.AddCommand(assumptionCmd)
}
