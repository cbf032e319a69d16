package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Review.MinReviewDurationSeconds)
	assert.Equal(t, 30, cfg.Review.FastApprovalThresholdSecs)
	assert.Equal(t, 10, cfg.Rewrite.MaxCyclesPerBlog)
	assert.Equal(t, 3, cfg.Rewrite.MaxCyclesPerParent)
	assert.Equal(t, 120, cfg.Rewrite.RewriterTimeoutSecs)
	assert.Equal(t, 5, cfg.Review.MaxReviewCyclesPerBlog)
	assert.Equal(t, []string{"internal_rubric"}, cfg.Evaluation.EnabledDetectors)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
review:
  min_review_duration_seconds: 30
  fast_approval_threshold_seconds: 30
  max_review_cycles_per_blog: 5
  max_rejections_per_reviewer: 3
  rejection_window_days: 7
  stale_review_days: 7
  cosign_fast_approval_limit: 3
rewrite:
  max_cycles_per_blog: 4
  max_cycles_per_parent: 3
  rewriter_timeout_seconds: 60
  stagnant_stop_count: 2
  oscillation_window_size: 3
  oscillation_span: 3.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Review.MinReviewDurationSeconds)
	assert.Equal(t, 4, cfg.Rewrite.MaxCyclesPerBlog)
	assert.Equal(t, 60, cfg.Rewrite.RewriterTimeoutSecs)
	// Untouched sections keep defaults
	assert.Equal(t, 4, cfg.Workflow.Workers)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
review:
  min_review_duration_secnods: 30
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_review_duration_secnods")
}

func TestLoad_RejectsUnknownTopLevelKey(t *testing.T) {
	path := writeConfig(t, `
reviw:
  min_review_duration_seconds: 30
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("REDLINE_DB overrides database path", func(t *testing.T) {
		t.Setenv("REDLINE_DB", "/tmp/other.db")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	})

	t.Run("GEMINI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "g-key")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "g-key", cfg.Rewrite.APIKey)
		assert.Equal(t, "gemini", cfg.Rewrite.Provider)
	})

	t.Run("GEMINI_API_KEY does not override existing provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "g-key")
		cfg := Default()
		cfg.Rewrite.Provider = "none"
		cfg.applyEnvOverrides()
		assert.Equal(t, "none", cfg.Rewrite.Provider)
	})

	t.Run("REDLINE_MIN_REVIEW_SECONDS overrides review gate", func(t *testing.T) {
		t.Setenv("REDLINE_MIN_REVIEW_SECONDS", "30")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, 30, cfg.Review.MinReviewDurationSeconds)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative review duration",
			mutate:  func(c *Config) { c.Review.MinReviewDurationSeconds = -1 },
			wantErr: "min_review_duration_seconds",
		},
		{
			name:    "zero rewrite cap",
			mutate:  func(c *Config) { c.Rewrite.MaxCyclesPerBlog = 0 },
			wantErr: "max_cycles_per_blog",
		},
		{
			name:    "duplicate detector id",
			mutate:  func(c *Config) { c.Evaluation.EnabledDetectors = []string{"a", "a"} },
			wantErr: "twice",
		},
		{
			name:    "rewrite retries above one",
			mutate:  func(c *Config) { c.Workflow.RewriteMaxRetries = 2 },
			wantErr: "rewrite_max_retries",
		},
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".redline", "config.yaml")

	cfg := Default()
	cfg.Review.MinReviewDurationSeconds = 30
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, loaded.Review.MinReviewDurationSeconds)
}
