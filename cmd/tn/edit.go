package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/types"
	"github.com/steveyegge/tenet/internal/ui"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit requests for governed decisions",
	Long: `Edit requests carry a proposed change to a decision until a lead
approves or rejects it. A decision has at most one pending request.`,
}

var editRequestCmd = &cobra.Command{
	Use:   "request [decision-id]",
	Short: "Propose a change to a decision",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		patch, err := patchFromFlags(cmd)
		FatalIfErr(invalidInput(err))
		justification, _ := cmd.Flags().GetString("justification")

		r, err := eng.RequestEdit(rootCtx, getActor(), args[0], justification, patch)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(r)
			return
		}
		printOK("Filed edit request %s for %s", ui.RenderAccent(r.ID), r.DecisionID)
	},
}

var editApproveCmd = &cobra.Command{
	Use:   "approve [request-id]",
	Short: "Approve an edit request and apply it (lead only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		d, err := eng.ApproveEdit(rootCtx, getActor(), args[0], note)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(d)
			return
		}
		printOK("Approved %s: %s is at version %d", args[0], d.ID, d.Version)
	},
}

var editRejectCmd = &cobra.Command{
	Use:   "reject [request-id]",
	Short: "Reject an edit request (lead only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		r, err := eng.RejectEdit(rootCtx, getActor(), args[0], note)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(r)
			return
		}
		printOK("Rejected %s", r.ID)
	},
}

var editShowCmd = &cobra.Command{
	Use:   "show [request-id]",
	Short: "Show an edit request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, err := eng.GetEditRequest(rootCtx, args[0])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(r)
			return
		}
		fmt.Printf("%s for %s: %s\n", ui.RenderAccent(r.ID), r.DecisionID, r.Status)
		fmt.Printf("Requested by %s at %s\n", r.Requester, formatTime(r.CreatedAt))
		fmt.Printf("Changes: %s\n", describePatch(r.Changes))
		fmt.Printf("Justification: %s\n", r.Justification)
		if r.DecidedBy != "" {
			fmt.Printf("Decided by %s at %s", r.DecidedBy, formatTimePtr(r.DecidedAt))
			if r.DecisionNote != "" {
				fmt.Printf(": %s", r.DecisionNote)
			}
			fmt.Println()
		}
	},
}

var editListCmd = &cobra.Command{
	Use:   "list [decision-id]",
	Short: "List edit requests",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var decisionID string
		if len(args) == 1 {
			decisionID = args[0]
		}
		var status *types.EditRequestStatus
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := parseEditStatus(s)
			FatalIfErr(invalidInput(err))
			status = &st
		}
		reqs, err := eng.ListEditRequests(rootCtx, decisionID, status)
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(reqs)
			return
		}
		printTable("No edit requests.",
			[]string{"ID", "DECISION", "STATUS", "REQUESTER", "JUSTIFICATION", "CREATED"},
			editRequestRows(reqs))
	},
}

func init() {
	addPatchFlags(editRequestCmd, true)
	editRequestCmd.Flags().StringP("justification", "j", "", "Why the change is needed")
	editApproveCmd.Flags().String("note", "", "Note recorded with the approval")
	editRejectCmd.Flags().String("note", "", "Why the request is rejected")
	editListCmd.Flags().String("status", "", "PENDING, APPROVED or REJECTED")

	editCmd.AddCommand(editRequestCmd, editApproveCmd, editRejectCmd, editShowCmd, editListCmd)
	rootCmd.AddCommand(editCmd)
}
