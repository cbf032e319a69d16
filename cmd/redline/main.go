// Package main implements the redline CLI: the operator surface over the
// content store, the scorers, the rewrite orchestrator, and the review
// state machine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	actorMail string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "redline - Internal Content Quality Engine",
	Long: `redline manages content through an append-only version history,
scores every version with deterministic AI-likeness and AEO rubrics,
runs bounded AI rewrite cycles, and enforces human-in-the-loop approval
with a full audit trail.

Nothing publishes without a human approval, and every attempt to get
one is recorded.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&actorMail, "actor", "", "Acting user's email (required for mutating commands)")

	rootCmd.AddCommand(actorCmd)
	rootCmd.AddCommand(blogCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(approvalCmd)
	rootCmd.AddCommand(escalationCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
