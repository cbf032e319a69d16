// Package main: evaluation and offline scoring commands.
package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"redline/internal/aeo"
	"redline/internal/evaluation"
	"redline/internal/rubric"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <version-id>",
	Short: "Run a full evaluation of a version",
	Long: `Runs every enabled AI-likeness detector plus the AEO scorer against
the version, records the scores, and prints the aggregate.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a local file without touching the store",
	Long: `Offline scoring for drafts.

Subcommands:
  ai  - AI-likeness rubric breakdown
  aeo - AEO pillar breakdown and rewrite guidance`,
}

var scoreAICmd = &cobra.Command{
	Use:   "ai <file>",
	Short: "Score a file with the AI-likeness rubric",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreAI,
}

var scoreAEOCmd = &cobra.Command{
	Use:   "aeo <file>",
	Short: "Score a file with the AEO rubric",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreAEO,
}

func init() {
	scoreCmd.AddCommand(scoreAICmd)
	scoreCmd.AddCommand(scoreAEOCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	run, err := a.pipeline.Evaluate(cmd.Context(), args[0], actor.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %s\n", run.ID, run.Status)

	agg, err := a.pipeline.AggregateRun(run.ID)
	if err != nil {
		return err
	}
	printAggregate(agg)
	return nil
}

func printAggregate(agg *evaluation.Aggregate) {
	fmt.Println(strings.Repeat("─", 60))
	if agg.AIScore != nil {
		fmt.Printf("  AI-likeness: %6.2f / 100 (lower is better)\n", *agg.AIScore)
	}
	providers := make([]string, 0, len(agg.DetectorScores))
	for p := range agg.DetectorScores {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Printf("    %-20s %6.2f\n", p, agg.DetectorScores[p])
	}
	if agg.AEOScore != nil {
		fmt.Printf("  AEO total:   %6.2f / 100 (higher is better)\n", *agg.AEOScore)
		for _, key := range aeo.PillarOrder {
			if p, ok := agg.Pillars[key]; ok {
				fmt.Printf("    %-20s %5.1f / %-4.0f\n", key, p.Score, p.MaxScore)
			}
		}
	}
	fmt.Println(strings.Repeat("─", 60))
}

func runScoreAI(cmd *cobra.Command, args []string) error {
	content, err := readContent(args[0])
	if err != nil {
		return err
	}
	result, err := rubric.Score(content)
	if err != nil {
		return err
	}
	fmt.Printf("AI-likeness: %.2f / 100 (rubric v%s)\n", result.TotalScore, result.RubricVersion)
	fmt.Println(strings.Repeat("─", 60))
	printCategory("Predictability / entropy", result.PredictabilityEntropy)
	printCategory("Sentence uniformity", result.SentenceUniformity)
	printCategory("Generic language", result.GenericLanguage)
	printCategory("Structural templates", result.StructuralTemplates)
	printCategory("Lack of friction", result.LackOfFriction)
	printCategory("Over-polish", result.OverPolish)
	fmt.Println(strings.Repeat("─", 60))
	return nil
}

func printCategory(name string, c rubric.CategoryScore) {
	fmt.Printf("  %-26s %5.1f / %-4.0f\n", name, c.Score, c.MaxScore)
	if c.Explanation != "" {
		fmt.Printf("    %s\n", c.Explanation)
	}
}

func runScoreAEO(cmd *cobra.Command, args []string) error {
	content, err := readContent(args[0])
	if err != nil {
		return err
	}
	result, err := aeo.Score(content)
	if err != nil {
		return err
	}
	fmt.Printf("AEO total: %.2f / 100 (rubric v%s)\n", result.TotalScore, result.RubricVersion)
	fmt.Println(strings.Repeat("─", 60))
	for _, key := range aeo.PillarOrder {
		p := result.Pillars[key]
		fmt.Printf("  %-20s %5.1f / %-4.0f\n", key, p.Score, p.MaxScore)
		for _, reason := range p.Reasons {
			fmt.Printf("    - %s\n", reason)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Println("Rewrite guidance:")
	for _, block := range aeo.RewriteInstructions(result) {
		fmt.Println()
		fmt.Println(block)
	}
	return nil
}
