package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/ui"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between decisions",
}

var depAddCmd = &cobra.Command{
	Use:   "add [decision-id] [depends-on-id]",
	Short: "Record that a decision depends on another",
	Long: `Record that a decision depends on another. Edges that would close a
cycle among live decisions are rejected and the graph is left unchanged.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		dep, err := eng.CreateDependency(rootCtx, getActor(), args[0], args[1])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(dep)
			return
		}
		printOK("Added dependency: %s depends on %s", args[0], args[1])
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove [decision-id] [depends-on-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		FatalIfErr(eng.RemoveDependency(rootCtx, getActor(), args[0], args[1]))
		if jsonOutput {
			outputJSON(map[string]string{"source_decision_id": args[0], "target_decision_id": args[1], "status": "removed"})
			return
		}
		printOK("Removed dependency: %s no longer depends on %s", args[0], args[1])
	},
}

var depListCmd = &cobra.Command{
	Use:   "list [decision-id]",
	Short: "List dependencies of a decision, or all of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		deps, err := eng.ListDependencies(rootCtx, id)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(deps)
			return
		}
		rows := make([][]string, 0, len(deps))
		for _, d := range deps {
			rows = append(rows, []string{d.SourceID, ui.RenderMuted("depends on"), d.TargetID, d.CreatedBy, formatTime(d.CreatedAt)})
		}
		printTable("No dependencies.", []string{"DECISION", "", "BLOCKED BY", "BY", "CREATED"}, rows)
	},
}

func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd)
}
