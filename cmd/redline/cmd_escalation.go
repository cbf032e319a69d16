// Package main: escalation and actor commands, plus workspace stats.
package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"redline/internal/store"
)

var (
	escalationStatus string
	resolveDismiss   bool
	actorRole        string
	actorNonHuman    bool
)

var escalationCmd = &cobra.Command{
	Use:   "escalations",
	Short: "List and resolve escalations",
	Long: `Escalations are automation hard-stops; a pending escalation blocks
further automated changes to its blog until a human resolves it.

Subcommands:
  list    - List escalations
  resolve - Resolve or dismiss an escalation`,
	RunE: runEscalationList,
}

var escalationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations",
	RunE:  runEscalationList,
}

var escalationResolveCmd = &cobra.Command{
	Use:   "resolve <escalation-id>",
	Short: "Resolve or dismiss an escalation",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalationResolve,
}

var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "Manage actors",
	Long: `Register and list actors. The is_human flag is the root of the
approval chain; automation runs under non-human actors and can never
approve anything.

Subcommands:
  create    - Register an actor
  list      - List actors
  set-human - Toggle an actor's humanity flag (admin only)`,
	RunE: runActorList,
}

var actorCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Register an actor",
	Args:  cobra.ExactArgs(1),
	RunE:  runActorCreate,
}

var actorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actors",
	RunE:  runActorList,
}

var actorSetHumanCmd = &cobra.Command{
	Use:   "set-human <email> <true|false>",
	Short: "Toggle an actor's humanity flag (admin only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runActorSetHuman,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store row counts",
	RunE:  runStats,
}

func init() {
	escalationListCmd.Flags().StringVar(&escalationStatus, "status", "", "Filter by status (pending_review, resolved, dismissed)")
	escalationResolveCmd.Flags().BoolVar(&resolveDismiss, "dismiss", false, "Dismiss instead of resolving")
	actorCreateCmd.Flags().StringVar(&actorRole, "role", store.RoleWriter, "Role (writer, reviewer, admin, system)")
	actorCreateCmd.Flags().BoolVar(&actorNonHuman, "non-human", false, "Register an automation actor")

	escalationCmd.AddCommand(escalationListCmd)
	escalationCmd.AddCommand(escalationResolveCmd)
	actorCmd.AddCommand(actorCreateCmd)
	actorCmd.AddCommand(actorListCmd)
	actorCmd.AddCommand(actorSetHumanCmd)
}

func runEscalationList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	escalations, err := a.store.ListEscalations(escalationStatus)
	if err != nil {
		return err
	}
	if len(escalations) == 0 {
		fmt.Println("No escalations.")
		return nil
	}
	fmt.Println("Escalations")
	fmt.Println(strings.Repeat("─", 72))
	for _, e := range escalations {
		fmt.Printf("  %s  %-16s %-14s blog %s\n", e.ID, e.Reason, e.Status, e.BlogID)
	}
	fmt.Println(strings.Repeat("─", 72))
	fmt.Printf("Total: %d\n", len(escalations))
	return nil
}

func runEscalationResolve(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	status := store.EscalationResolved
	if resolveDismiss {
		status = store.EscalationDismissed
	}
	if err := a.store.ResolveEscalation(args[0], actor.ID, status); err != nil {
		return err
	}
	fmt.Printf("Escalation %s %s\n", args[0], status)
	return nil
}

func runActorCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.store.CreateActor(args[0], actorRole, !actorNonHuman)
	if err != nil {
		return err
	}
	kind := "human"
	if !actor.IsHuman {
		kind = "automation"
	}
	fmt.Printf("Created %s actor %s (%s, %s)\n", kind, actor.ID, actor.Email, actor.Role)
	return nil
}

func runActorSetHuman(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	admin, err := a.resolveActor()
	if err != nil {
		return err
	}
	target, err := a.store.GetActorByEmail(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", args[1])
	}
	updated, err := a.store.SetHumanFlag(target.ID, admin.ID, value)
	if err != nil {
		return err
	}
	fmt.Printf("Actor %s is_human=%v\n", updated.Email, updated.IsHuman)
	return nil
}

func runActorList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actors, err := a.store.ListActors()
	if err != nil {
		return err
	}
	if len(actors) == 0 {
		fmt.Println("No actors.")
		return nil
	}
	fmt.Println("Actors")
	fmt.Println(strings.Repeat("─", 60))
	for _, ac := range actors {
		human := "human"
		if !ac.IsHuman {
			human = "automation"
		}
		fmt.Printf("  %s  %-30s %-10s %s\n", ac.ID, ac.Email, ac.Role, human)
	}
	fmt.Println(strings.Repeat("─", 60))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.Stats()
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(stats))
	for t := range stats {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	fmt.Println("Store")
	fmt.Println(strings.Repeat("─", 40))
	for _, t := range tables {
		fmt.Printf("  %-24s %6d\n", t, stats[t])
	}
	fmt.Println(strings.Repeat("─", 40))
	return nil
}
