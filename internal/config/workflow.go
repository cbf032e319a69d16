package config

import (
	"fmt"
	"time"
)

// WorkflowConfig controls the background task runner.
type WorkflowConfig struct {
	// Worker pool size.
	Workers int `yaml:"workers"`

	// Retries for idempotent scorer tasks (check-then-insert guards
	// double writes, so retries are safe).
	ScorerMaxRetries int `yaml:"scorer_max_retries"`

	// Retries for rewrite tasks. At most one: the external call is not
	// idempotent by design.
	RewriteMaxRetries int `yaml:"rewrite_max_retries"`

	// Base delay for exponential backoff between retries.
	BackoffBaseMillis int `yaml:"backoff_base_millis"`
}

// BackoffBase returns the base backoff delay.
func (w WorkflowConfig) BackoffBase() time.Duration {
	return time.Duration(w.BackoffBaseMillis) * time.Millisecond
}

// Validate checks workflow settings.
func (w WorkflowConfig) Validate() error {
	if w.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", w.Workers)
	}
	if w.ScorerMaxRetries < 0 {
		return fmt.Errorf("scorer_max_retries must be >= 0, got %d", w.ScorerMaxRetries)
	}
	if w.RewriteMaxRetries < 0 || w.RewriteMaxRetries > 1 {
		return fmt.Errorf("rewrite_max_retries must be 0 or 1, got %d", w.RewriteMaxRetries)
	}
	return nil
}
