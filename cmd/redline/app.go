package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"redline/internal/config"
	"redline/internal/detector"
	"redline/internal/evaluation"
	"redline/internal/logging"
	"redline/internal/review"
	"redline/internal/rewrite"
	"redline/internal/store"
	"redline/internal/workflow"
)

// app wires the full engine for one CLI invocation.
type app struct {
	cfg      *config.Config
	store    *store.ContentStore
	registry *detector.Registry
	runner   *workflow.Runner
	pipeline *evaluation.Pipeline
	machine  *review.Machine
	orch     *rewrite.Orchestrator
}

// openApp loads config, initializes logging, opens the store, and builds
// the pipeline, orchestrator and review machine.
func openApp() (*app, error) {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve workspace: %w", err)
		}
	}

	cfg, err := config.LoadWorkspace(ws)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(ws); err != nil {
		return nil, err
	}
	logging.Configure(cfg.Logging.DebugMode || verbose, cfg.Logging.Level, cfg.Logging.Categories)
	if err := logging.InitAudit(); err != nil {
		return nil, err
	}

	dbPath := cfg.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, dbPath)
	}
	s, err := store.NewContentStore(dbPath)
	if err != nil {
		return nil, err
	}

	registry := detector.NewRegistry()
	if err := registry.Register(detector.NewRubricDetector()); err != nil {
		s.Close()
		return nil, err
	}

	runner := workflow.NewRunner(cfg.Workflow)
	runner.Start()

	pipeline := evaluation.New(s, registry, runner, cfg.Evaluation, cfg.Workflow)
	machine := review.NewMachine(s, cfg.Review)

	var rewriter rewrite.Rewriter
	switch cfg.Rewrite.Provider {
	case "gemini":
		rewriter, err = rewrite.NewGeminiRewriter(cfg.Rewrite.APIKey, cfg.Rewrite.Model)
		if err != nil {
			runner.Stop()
			s.Close()
			return nil, err
		}
	default:
		rewriter = nil
	}
	var orch *rewrite.Orchestrator
	if rewriter != nil {
		orch = rewrite.New(s, pipeline, rewriter, runner, cfg.Rewrite, cfg.Workflow)
	}

	return &app{
		cfg:      cfg,
		store:    s,
		registry: registry,
		runner:   runner,
		pipeline: pipeline,
		machine:  machine,
		orch:     orch,
	}, nil
}

func (a *app) close() {
	a.runner.Stop()
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
	logging.CloseAudit()
	logging.CloseAll()
}

// resolveActor maps the --actor email flag to a stored actor.
func (a *app) resolveActor() (*store.Actor, error) {
	if actorMail == "" {
		return nil, fmt.Errorf("--actor is required (the acting user's email)")
	}
	return a.store.GetActorByEmail(actorMail)
}

// readContent loads content from a file argument, or stdin when path is "-".
func readContent(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
