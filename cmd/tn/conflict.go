package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Detect, inspect and resolve conflicts",
}

var conflictDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Compare every pair of assumptions and decisions",
	Long: `Run a full conflict detection pass. Pairs already covered by an open
conflict only update it when the new confidence is higher; pairs resolved
with KEEP_BOTH stay quiet until one side changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		res, err := eng.DetectConflicts(rootCtx)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(res)
			return
		}
		printOK("Compared %d pairs: %d new, %d updated", res.PairsCompared, res.ConflictsDetected, res.ConflictsUpdated)
		if res.ClassifierErrors > 0 {
			fmt.Fprintf(os.Stderr, "%s %d pairs could not be classified\n", ui.RenderWarn("⚠"), res.ClassifierErrors)
		}
	},
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.ConflictFilter
		if s, _ := cmd.Flags().GetString("kind"); s != "" {
			k, err := parseKind(s)
			FatalIfErr(invalidInput(err))
			filter.Kind = &k
		}
		all, _ := cmd.Flags().GetBool("all")
		filter.OpenOnly = !all
		filter.EntityID, _ = cmd.Flags().GetString("entity")

		conflicts, err := eng.ListConflicts(rootCtx, filter)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(conflicts)
			return
		}
		printTable("No conflicts.",
			[]string{"ID", "KIND", "BETWEEN", "TYPE", "CONFIDENCE", "STATE"},
			conflictRows(conflicts))
	},
}

var conflictShowCmd = &cobra.Command{
	Use:   "show [conflict-id]",
	Short: "Show a conflict",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := eng.GetConflict(rootCtx, args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Print(renderConflict(c))
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve [conflict-id] [action]",
	Short: "Resolve a conflict",
	Long: `Resolve a conflict. The action must fit the conflict's kind:

  assumption conflicts: VALIDATE_A, VALIDATE_B, DEPRECATE_BOTH, MERGE, KEEP_BOTH
  decision conflicts:   PRIORITIZE_A, PRIORITIZE_B, RETIRE_BOTH, MERGE, KEEP_BOTH

The resolution and every status or lifecycle change it causes are committed
together or not at all.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		action := parseAction(args[1])

		c, err := eng.GetConflict(rootCtx, args[0])
		FatalIfErr(err)

		switch c.Kind {
		case types.KindAssumption:
			c, err = eng.ResolveAssumptionConflict(rootCtx, getActor(), c.ID, action, notes)
		default:
			c, err = eng.ResolveDecisionConflict(rootCtx, getActor(), c.ID, action, notes)
		}
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		printOK("Resolved %s with %s", c.ID, c.Resolution)
	},
}

var conflictDismissCmd = &cobra.Command{
	Use:   "dismiss [conflict-id]",
	Short: "Dismiss a conflict as a false positive",
	Long: `Dismiss an open conflict as a false positive. It is deleted and the pair
is not reported again until one side changes.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !jsonOutput {
			if !confirm(fmt.Sprintf("Dismiss conflict %s?", args[0]), true) {
				fmt.Fprintln(os.Stderr, "Dismiss cancelled.")
				return
			}
		}
		FatalIfErr(eng.DismissConflict(rootCtx, getActor(), args[0]))
		if jsonOutput {
			outputJSON(map[string]string{"dismissed": args[0]})
			return
		}
		printOK("Dismissed %s", args[0])
	},
}

func init() {
	conflictListCmd.Flags().String("kind", "", "assumption or decision")
	conflictListCmd.Flags().Bool("all", false, "Include resolved conflicts")
	conflictListCmd.Flags().String("entity", "", "Only conflicts involving this assumption or decision")

	conflictResolveCmd.Flags().String("notes", "", "Resolution notes")
	conflictDismissCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	conflictCmd.AddCommand(conflictDetectCmd, conflictListCmd, conflictShowCmd, conflictResolveCmd, conflictDismissCmd)
	rootCmd.AddCommand(conflictCmd)
}
