// Package main: review state machine commands.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reviewRationale string
	reviewCosigner  string
	overrideJustif  string
	overrideRisk    string
	editReason      string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Drive the human review state machine",
	Long: `Submit, approve, reject, override, edit during review, and sweep
stale reviews.

Subcommands:
  submit   - Move a DRAFT version into IN_REVIEW
  approve  - Approve an IN_REVIEW version (timer-gated)
  reject   - Reject an IN_REVIEW version (terminal)
  override - Admin approval outside the normal gates
  edit     - Append a corrected version while the original is IN_REVIEW
  sweep    - Auto-archive versions stuck IN_REVIEW too long`,
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit <version-id>",
	Short: "Submit a DRAFT version for review",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewSubmit,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <version-id>",
	Short: "Approve an IN_REVIEW version",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewApprove,
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <version-id>",
	Short: "Reject an IN_REVIEW version",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewReject,
}

var reviewOverrideCmd = &cobra.Command{
	Use:   "override <version-id>",
	Short: "Approve by admin override",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewOverride,
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <version-id> <file>",
	Short: "Append a corrected version during review",
	Args:  cobra.ExactArgs(2),
	RunE:  runReviewEdit,
}

var reviewSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Auto-archive stale reviews",
	RunE:  runReviewSweep,
}

func init() {
	reviewApproveCmd.Flags().StringVar(&reviewRationale, "rationale", "", "Approval rationale (min 20 characters)")
	reviewApproveCmd.Flags().StringVar(&reviewCosigner, "cosigner", "", "Co-signing admin's email (required on a fast-approval streak)")
	reviewRejectCmd.Flags().StringVar(&reviewRationale, "rationale", "", "Rejection rationale (min 20 characters)")
	reviewOverrideCmd.Flags().StringVar(&overrideJustif, "justification", "", "Why the normal gates are being bypassed")
	reviewOverrideCmd.Flags().StringVar(&overrideRisk, "risk-note", "", "Risk acceptance note")
	reviewEditCmd.Flags().StringVar(&editReason, "reason", "", "Change reason")

	reviewCmd.AddCommand(reviewSubmitCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	reviewCmd.AddCommand(reviewOverrideCmd)
	reviewCmd.AddCommand(reviewEditCmd)
	reviewCmd.AddCommand(reviewSweepCmd)
}

func runReviewSubmit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	state, err := a.machine.SubmitForReview(args[0], actor.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Version %s is now %s (review clock started)\n", args[0], state.State)
	return nil
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	cosignerID := ""
	if reviewCosigner != "" {
		cosigner, err := a.store.GetActorByEmail(reviewCosigner)
		if err != nil {
			return err
		}
		cosignerID = cosigner.ID
	}
	approval, err := a.machine.Approve(args[0], actor.ID, reviewRationale, cosignerID)
	if err != nil {
		return err
	}
	fmt.Printf("Version %s approved (approval %s)\n", args[0], approval.ID)
	return nil
}

func runReviewReject(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	if err := a.machine.Reject(args[0], actor.ID, reviewRationale); err != nil {
		return err
	}
	fmt.Printf("Version %s rejected\n", args[0])
	return nil
}

func runReviewOverride(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	approval, err := a.machine.Override(args[0], actor.ID, overrideJustif, overrideRisk)
	if err != nil {
		return err
	}
	fmt.Printf("Version %s approved by override (approval %s)\n", args[0], approval.ID)
	return nil
}

func runReviewEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	content, err := readContent(args[1])
	if err != nil {
		return err
	}
	v, err := a.machine.EditDuringReview(args[0], actor.ID, content, editReason)
	if err != nil {
		return err
	}
	fmt.Printf("Appended version %d (%s); the original stays in review\n", v.VersionNumber, v.ID)
	return nil
}

func runReviewSweep(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	archived, err := a.machine.ArchiveStale()
	if err != nil {
		return err
	}
	if len(archived) == 0 {
		fmt.Println("No stale reviews.")
		return nil
	}
	for _, s := range archived {
		fmt.Printf("Archived %s (blog %s)\n", s.VersionID, s.BlogID)
	}
	fmt.Printf("Total: %d\n", len(archived))
	return nil
}
