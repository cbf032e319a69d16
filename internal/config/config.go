// Package config loads and validates redline configuration.
// Configuration lives in .redline/config.yaml inside the workspace.
// Unknown keys are rejected at startup: a typo in a gating parameter like
// min_review_duration_seconds must fail loudly, not silently default.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all redline configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// SQLite database path (relative paths resolve against the workspace)
	DatabasePath string `yaml:"database_path"`

	// Review state machine gates
	Review ReviewConfig `yaml:"review"`

	// Evaluation pipeline
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Rewrite orchestrator
	Rewrite RewriteConfig `yaml:"rewrite"`

	// Workflow runner
	Workflow WorkflowConfig `yaml:"workflow"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the category file loggers.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Name:         "redline",
		Version:      "1.0.0",
		DatabasePath: ".redline/redline.db",
		Review: ReviewConfig{
			MinReviewDurationSeconds:  300,
			FastApprovalThresholdSecs: 30,
			MaxReviewCyclesPerBlog:    5,
			MaxRejectionsPerReviewer:  3,
			RejectionWindowDays:       7,
			StaleReviewDays:           7,
			CosignFastApprovalLimit:   3,
		},
		Evaluation: EvaluationConfig{
			EnabledDetectors:    []string{"internal_rubric"},
			DetectorTimeoutSecs: 60,
			RegressionThreshold: 10.0,
		},
		Rewrite: RewriteConfig{
			MaxCyclesPerBlog:      10,
			MaxCyclesPerParent:    3,
			RewriterTimeoutSecs:   120,
			StagnantStopCount:     2,
			OscillationWindowSize: 3,
			OscillationSpan:       3.0,
		},
		Workflow: WorkflowConfig{
			Workers:           4,
			ScorerMaxRetries:  3,
			RewriteMaxRetries: 1,
			BackoffBaseMillis: 250,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from the given path, applying defaults for
// missing sections and environment overrides last. Unknown YAML keys are
// a hard error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorkspace loads the config for a workspace directory.
func LoadWorkspace(workspace string) (*Config, error) {
	return Load(filepath.Join(workspace, ".redline", "config.yaml"))
}

// applyEnvOverrides lets environment variables override file settings.
// Env wins over file, file wins over defaults.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REDLINE_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("REDLINE_MIN_REVIEW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Review.MinReviewDurationSeconds = n
		}
	}
	if v := os.Getenv("REDLINE_REWRITER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rewrite.RewriterTimeoutSecs = n
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Rewrite.APIKey = key
		if c.Rewrite.Provider == "" {
			c.Rewrite.Provider = "gemini"
		}
	}
}

// Validate checks cross-field invariants that YAML decoding cannot express.
func (c *Config) Validate() error {
	if err := c.Review.Validate(); err != nil {
		return err
	}
	if err := c.Evaluation.Validate(); err != nil {
		return err
	}
	if err := c.Rewrite.Validate(); err != nil {
		return err
	}
	if err := c.Workflow.Validate(); err != nil {
		return err
	}
	return nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// durationFromSeconds is a convenience for the seconds-denominated knobs.
func durationFromSeconds(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
