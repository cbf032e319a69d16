package store

import "time"

// Actor roles.
const (
	RoleWriter   = "writer"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Version sources.
const (
	SourceHumanPaste = "human_paste"
	SourceAIRewrite  = "ai_rewrite"
	SourceHumanEdit  = "human_edit"
)

// Evaluation run statuses.
const (
	RunProcessing     = "processing"
	RunCompleted      = "completed"
	RunPartialFailure = "partial_failure"
	RunFailed         = "failed"
)

// Rewrite cycle statuses.
const (
	CyclePending   = "pending"
	CycleCompleted = "completed"
	CycleTerminal  = "terminal"
)

// Approval attempt results.
const (
	AttemptSuccess        = "success"
	AttemptForbidden      = "forbidden"
	AttemptInvalidState   = "invalid_state"
	AttemptInvalidVersion = "invalid_version"
)

// Review actions.
const (
	ActionApprove         = "APPROVE"
	ActionReject          = "REJECT"
	ActionComment         = "COMMENT"
	ActionRequestChanges  = "REQUEST_CHANGES"
	ActionApproveIntent   = "APPROVE_INTENT"
	ActionSubmitForReview = "SUBMIT_FOR_REVIEW"
)

// Review states.
const (
	StateDraft    = "DRAFT"
	StateInReview = "IN_REVIEW"
	StateApproved = "APPROVED"
	StateRejected = "REJECTED"
	StateArchived = "ARCHIVED"
)

// Escalation reasons.
const (
	EscalationScoreRegression = "score_regression"
	EscalationPolicyViolation = "policy_violation"
	EscalationAmbiguity       = "ambiguity"
	EscalationLowQuality      = "low_quality"
)

// Escalation statuses.
const (
	EscalationPending   = "pending_review"
	EscalationResolved  = "resolved"
	EscalationDismissed = "dismissed"
)

// Actor is a principal. role=system implies is_human=false (CHECK enforced).
type Actor struct {
	ID        string
	Email     string
	Role      string
	IsHuman   bool
	CreatedAt time.Time
}

// Blog is the stable identity of a piece of content. Name never changes.
type Blog struct {
	ID        string
	Name      string
	ProjectID string // optional grouping key
	CreatedBy string
	CreatedAt time.Time
}

// Version is an immutable content snapshot of a blog.
type Version struct {
	ID                   string
	BlogID               string
	ParentVersionID      string // empty for the root version
	Content              string
	ContentHash          string // hex SHA-256 over Content
	VersionNumber        int
	Source               string
	SourceRewriteCycleID string // required iff Source == ai_rewrite
	ChangeReason         string
	CreatedBy            string
	CreatedAt            time.Time
}

// EvaluationRun is the orchestration envelope of one evaluation pass.
// Everything except Status and CompletedAt is immutable after insert.
type EvaluationRun struct {
	ID            string
	BlogVersionID string
	RunAt         time.Time
	TriggeredBy   string // empty means system-triggered
	ModelConfig   string // JSON snapshot of scorer configuration
	Status        string
	CompletedAt   *time.Time
}

// DetectorScore is a write-once AI-likeness score row for one provider.
type DetectorScore struct {
	ID       string
	RunID    string
	Provider string
	Score    float64
	Details  string // JSON: model_version, raw_response, timestamp
}

// AEOScore is a write-once AEO score row for one query intent.
type AEOScore struct {
	ID          string
	RunID       string
	QueryIntent string
	Score       float64
	Rationale   string
	Details     string // JSON pillar breakdown
}

// RewriteCycle is one orchestrated rewrite attempt. Prompt, reasons and
// parent snapshot are write-once; the child link, trend fields and status
// are filled as the cycle progresses.
type RewriteCycle struct {
	ID              string
	ParentVersionID string
	ChildVersionID  string // empty until the child version is appended
	CycleNumber     int
	TriggerReasons  string // JSON array of trigger ids
	TriggerData     string // JSON trigger evidence
	RewritePrompt   string // verbatim filled template
	ParentScores    string // JSON aggregate snapshot
	ChildScores     string // JSON aggregate snapshot
	TrendOutcome    string // improving, partial_improvement, stagnant, regressing
	TrendCode       int    // 1..4, 0 while unset
	RewriteStatus   string
	StopReason      string
	CreatedAt       time.Time
}

// ApprovalState declares approval of a specific version of a blog.
// Rows are write-once; revocation inserts a companion row.
type ApprovalState struct {
	ID                string
	BlogID            string
	ApprovedVersionID string
	ApproverID        string
	ApprovedAt        time.Time
	RevokedAt         *time.Time
	RevokedBy         string
	RevocationReason  string
	Notes             string
}

// ApprovalAttempt audits every approval attempt, success or failure.
type ApprovalAttempt struct {
	ID            string
	BlogID        string
	AttemptedBy   string
	IsHuman       bool // snapshot of the actor's flag at attempt time
	Result        string
	AttemptedAt   time.Time
	FailureReason string
}

// ReviewAction is a logged human review event.
type ReviewAction struct {
	ID            string
	BlogVersionID string
	ReviewerID    string
	Action        string
	Comments      string
	IsOverride    bool
	PerformedAt   time.Time
}

// ReviewState tracks the per-version state machine position.
type ReviewState struct {
	VersionID       string
	BlogID          string
	State           string
	ReviewStartedAt *time.Time
	UpdatedAt       time.Time
}

// Escalation is an automation hard-stop awaiting human intervention.
// "Escalated" is derived by querying open rows; there is no flag anywhere.
type Escalation struct {
	ID         string
	BlogID     string
	VersionID  string
	Reason     string
	Details    string // JSON
	Status     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}
