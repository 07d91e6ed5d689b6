package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var constraintCmd = &cobra.Command{
	Use:   "constraint",
	Short: "Manage organizational constraints",
	Long: `Manage organizational constraints. Every constraint applies to every
decision; whether a decision violates one is decided by the constraint rules
file (constraint.rules-file). A violation caps the decision's health at 40.`,
}

var constraintCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Add a constraint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typStr, _ := cmd.Flags().GetString("type")
		typ, err := parseConstraintType(typStr)
		FatalIfErr(invalidInput(err))
		description, _ := cmd.Flags().GetString("description")

		c, err := eng.CreateConstraint(rootCtx, getActor(), engine.NewConstraint{
			Name:        args[0],
			Description: description,
			Type:        typ,
		})
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		printOK("Created constraint %s: %s", ui.RenderAccent(c.ID), c.Name)
	},
}

var constraintListCmd = &cobra.Command{
	Use:   "list",
	Short: "List constraints",
	Run: func(cmd *cobra.Command, args []string) {
		constraints, err := eng.ListConstraints(rootCtx)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(constraints)
			return
		}
		rows := make([][]string, 0, len(constraints))
		for _, c := range constraints {
			immutable := ""
			if c.IsImmutable {
				immutable = "immutable"
			}
			rows = append(rows, []string{c.ID, string(c.Type), c.Name, ui.TruncateSimple(c.Description, 48), immutable})
		}
		printTable("No constraints defined.", []string{"ID", "TYPE", "NAME", "DESCRIPTION", ""}, rows)
	},
}

var constraintDeleteCmd = &cobra.Command{
	Use:   "delete [constraint-id]",
	Short: "Delete a constraint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		unlinkFirst, _ := cmd.Flags().GetBool("force")
		FatalIfErr(eng.DeleteConstraint(rootCtx, getActor(), args[0], unlinkFirst))
		if jsonOutput {
			outputJSON(map[string]string{"deleted": args[0]})
			return
		}
		printOK("Deleted %s", args[0])
	},
}

func init() {
	constraintCreateCmd.Flags().String("type", string(types.ConstraintOther),
		"LEGAL, BUDGET, POLICY, TECHNICAL, COMPLIANCE or OTHER")
	constraintCreateCmd.Flags().StringP("description", "d", "", "Constraint description")
	constraintDeleteCmd.Flags().Bool("force", false, "Delete even while live decisions exist")

	constraintCmd.AddCommand(constraintCreateCmd, constraintListCmd, constraintDeleteCmd)
	rootCmd.AddCommand(constraintCmd)
}
