package config

import (
	"fmt"
	"time"
)

// ReviewConfig gates the human review state machine.
type ReviewConfig struct {
	// Minimum seconds a version must sit IN_REVIEW before approve/reject.
	// The source deployments disagree on 30 vs 300; this is deliberately a
	// configured parameter with 300 as the shipped default.
	MinReviewDurationSeconds int `yaml:"min_review_duration_seconds"`

	// An approval within this many seconds of version creation is flagged
	// as a rubber-stamp and audited.
	FastApprovalThresholdSecs int `yaml:"fast_approval_threshold_seconds"`

	// Review cycles (submit_for_review events) allowed per blog before
	// escalation.
	MaxReviewCyclesPerBlog int `yaml:"max_review_cycles_per_blog"`

	// Rejections by one reviewer inside the window that trigger
	// reassignment escalation.
	MaxRejectionsPerReviewer int `yaml:"max_rejections_per_reviewer"`
	RejectionWindowDays      int `yaml:"rejection_window_days"`

	// Days a version may sit IN_REVIEW before auto-archive.
	StaleReviewDays int `yaml:"stale_review_days"`

	// Fast approvals by one reviewer in 24h before cosign is required.
	CosignFastApprovalLimit int `yaml:"cosign_fast_approval_limit"`
}

// MinReviewDuration returns the minimum review duration.
func (r ReviewConfig) MinReviewDuration() time.Duration {
	return durationFromSeconds(r.MinReviewDurationSeconds)
}

// FastApprovalThreshold returns the rubber-stamp threshold.
func (r ReviewConfig) FastApprovalThreshold() time.Duration {
	return durationFromSeconds(r.FastApprovalThresholdSecs)
}

// Validate checks review gate sanity.
func (r ReviewConfig) Validate() error {
	if r.MinReviewDurationSeconds < 0 {
		return fmt.Errorf("min_review_duration_seconds must be >= 0, got %d", r.MinReviewDurationSeconds)
	}
	if r.FastApprovalThresholdSecs < 0 {
		return fmt.Errorf("fast_approval_threshold_seconds must be >= 0, got %d", r.FastApprovalThresholdSecs)
	}
	if r.MaxReviewCyclesPerBlog < 1 {
		return fmt.Errorf("max_review_cycles_per_blog must be >= 1, got %d", r.MaxReviewCyclesPerBlog)
	}
	return nil
}
