// Package main: rewrite orchestration command.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"redline/internal/rewrite"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <version-id>",
	Short: "Run one bounded rewrite cycle",
	Long: `Evaluates the rewrite triggers against the version's latest scores
and, if any fire, runs one full cycle: freeze the prompt, call the
configured rewriter, append the child version, evaluate it, and classify
the trend. Approved or escalated blogs are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func runRewrite(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.orch == nil {
		return fmt.Errorf("no rewrite provider configured (set rewrite.provider in config)")
	}
	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	decision, err := a.orch.Orchestrate(cmd.Context(), args[0], actor.ID)
	if err != nil {
		return err
	}

	switch decision.Action {
	case rewrite.ActionNoRewriteRequired:
		fmt.Println("No rewrite required; all triggers clear.")
	case rewrite.ActionStopped:
		fmt.Printf("Rewrite stopped: %s\n", decision.Reason)
	case rewrite.ActionRewritten:
		c := decision.Cycle
		fmt.Printf("Cycle %s completed (cycle %d)\n", c.ID, c.CycleNumber)
		fmt.Printf("  child version: %s\n", c.ChildVersionID)
		fmt.Printf("  trend:         %s (%d)\n", c.TrendOutcome, c.TrendCode)
		fmt.Printf("  triggers:      %s\n", c.TriggerReasons)
	}
	return nil
}
