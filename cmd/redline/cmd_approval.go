// Package main: approval inspection and revocation commands.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var revokeReason string

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Inspect and revoke approvals",
	Long: `Approvals are append-only; revocation adds a record instead of
deleting one.

Subcommands:
  current - Show a blog's current approval
  history - Show a blog's full approval history
  revoke  - Revoke a blog's current approval`,
}

var approvalCurrentCmd = &cobra.Command{
	Use:   "current <blog-id>",
	Short: "Show the current approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalCurrent,
}

var approvalHistoryCmd = &cobra.Command{
	Use:   "history <blog-id>",
	Short: "Show the approval history",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalHistory,
}

var approvalRevokeCmd = &cobra.Command{
	Use:   "revoke <blog-id>",
	Short: "Revoke the current approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalRevoke,
}

func init() {
	approvalRevokeCmd.Flags().StringVar(&revokeReason, "reason", "", "Revocation reason (required)")

	approvalCmd.AddCommand(approvalCurrentCmd)
	approvalCmd.AddCommand(approvalHistoryCmd)
	approvalCmd.AddCommand(approvalRevokeCmd)
}

func runApprovalCurrent(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	approval, err := a.store.CurrentApproval(args[0])
	if err != nil {
		return err
	}
	if approval == nil {
		fmt.Println("No current approval.")
		return nil
	}
	fmt.Printf("Blog %s is approved at version %s\n", approval.BlogID, approval.ApprovedVersionID)
	fmt.Printf("  approved by %s at %s\n", approval.ApproverID, approval.ApprovedAt.Format("2006-01-02 15:04:05"))
	if approval.Notes != "" {
		fmt.Printf("  notes: %s\n", approval.Notes)
	}
	return nil
}

func runApprovalHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.store.ApprovalHistory(args[0])
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No approval history.")
		return nil
	}
	fmt.Printf("Approval history of blog %s\n", args[0])
	fmt.Println(strings.Repeat("─", 72))
	for _, s := range history {
		status := "active"
		if s.RevokedAt != nil {
			status = fmt.Sprintf("revoked by %s: %s", s.RevokedBy, s.RevocationReason)
		}
		fmt.Printf("  %s  version %s  %s  [%s]\n",
			s.ApprovedAt.Format("2006-01-02 15:04"), s.ApprovedVersionID, s.ApproverID, status)
	}
	fmt.Println(strings.Repeat("─", 72))
	return nil
}

func runApprovalRevoke(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	revocation, err := a.store.RevokeApproval(args[0], actor.ID, revokeReason)
	if err != nil {
		return err
	}
	fmt.Printf("Revoked approval of version %s on blog %s\n", revocation.ApprovedVersionID, revocation.BlogID)
	return nil
}
