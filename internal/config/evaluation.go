package config

import (
	"fmt"
	"time"
)

// EvaluationConfig controls the evaluation pipeline.
type EvaluationConfig struct {
	// Detector ids to run, in execution order. Empty means no detectors
	// (no hidden defaults once a config file names the list).
	EnabledDetectors []string `yaml:"enabled_detectors"`

	// Per-detector timeout. Deterministic detectors never hit it; the
	// budget exists for any LLM-backed detector that gets registered.
	DetectorTimeoutSecs int `yaml:"detector_timeout_seconds"`

	// Points a metric must drop between consecutive comparable runs to
	// count as a regression.
	RegressionThreshold float64 `yaml:"regression_threshold"`
}

// DetectorTimeout returns the per-detector timeout.
func (e EvaluationConfig) DetectorTimeout() time.Duration {
	return durationFromSeconds(e.DetectorTimeoutSecs)
}

// Validate checks evaluation settings.
func (e EvaluationConfig) Validate() error {
	if e.DetectorTimeoutSecs <= 0 {
		return fmt.Errorf("detector_timeout_seconds must be > 0, got %d", e.DetectorTimeoutSecs)
	}
	if e.RegressionThreshold <= 0 {
		return fmt.Errorf("regression_threshold must be > 0, got %v", e.RegressionThreshold)
	}
	seen := make(map[string]bool, len(e.EnabledDetectors))
	for _, id := range e.EnabledDetectors {
		if id == "" {
			return fmt.Errorf("enabled_detectors contains an empty id")
		}
		if seen[id] {
			return fmt.Errorf("enabled_detectors lists %q twice", id)
		}
		seen[id] = true
	}
	return nil
}
