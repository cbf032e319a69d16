package config

import (
	"fmt"
	"time"
)

// RewriteConfig controls the rewrite orchestrator.
type RewriteConfig struct {
	// External LLM provider: "gemini" or "none" (orchestration disabled).
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`

	// Hard cap on rewrite cycles per blog, re-checked inside the task.
	MaxCyclesPerBlog int `yaml:"max_cycles_per_blog"`

	// Loop-breaking cap per parent version (S1).
	MaxCyclesPerParent int `yaml:"max_cycles_per_parent"`

	// Timeout for a single Rewriter.Generate call.
	RewriterTimeoutSecs int `yaml:"rewriter_timeout_seconds"`

	// Consecutive stagnant trends before stopping (S2).
	StagnantStopCount int `yaml:"stagnant_stop_count"`

	// Oscillation detection (S4): window of child AEO totals and the span
	// below which the loop is considered oscillating.
	OscillationWindowSize int     `yaml:"oscillation_window_size"`
	OscillationSpan       float64 `yaml:"oscillation_span"`
}

// RewriterTimeout returns the external call timeout.
func (r RewriteConfig) RewriterTimeout() time.Duration {
	return durationFromSeconds(r.RewriterTimeoutSecs)
}

// Validate checks rewrite settings.
func (r RewriteConfig) Validate() error {
	if r.MaxCyclesPerBlog < 1 {
		return fmt.Errorf("max_cycles_per_blog must be >= 1, got %d", r.MaxCyclesPerBlog)
	}
	if r.MaxCyclesPerParent < 1 {
		return fmt.Errorf("max_cycles_per_parent must be >= 1, got %d", r.MaxCyclesPerParent)
	}
	if r.RewriterTimeoutSecs <= 0 {
		return fmt.Errorf("rewriter_timeout_seconds must be > 0, got %d", r.RewriterTimeoutSecs)
	}
	if r.OscillationWindowSize < 2 {
		return fmt.Errorf("oscillation_window_size must be >= 2, got %d", r.OscillationWindowSize)
	}
	return nil
}
