// Package logging: structured audit logging. Audit events are append-only
// JSON lines written to .redline/audit/, complementing the authoritative
// audit rows in the database (approval_attempts, escalations). Unlike the
// category logs, the audit log is written regardless of debug mode.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies the kind of audit event.
type AuditEventType string

const (
	// Actors
	AuditActorFlagChanged AuditEventType = "actor_flag_changed"

	// Approval lifecycle
	AuditApprovalAttempt AuditEventType = "approval_attempt"
	AuditApprovalGranted AuditEventType = "approval_granted"
	AuditApprovalRevoked AuditEventType = "approval_revoked"
	AuditFastApproval    AuditEventType = "fast_approval"
	AuditOverride        AuditEventType = "override"

	// Review lifecycle
	AuditReviewStarted AuditEventType = "review_started"
	AuditReviewAction  AuditEventType = "review_action"
	AuditAutoArchive   AuditEventType = "auto_archive"

	// Evaluation pipeline
	AuditEvaluationStarted   AuditEventType = "evaluation_started"
	AuditEvaluationFinalized AuditEventType = "evaluation_finalized"
	AuditRegressionDetected  AuditEventType = "regression_detected"

	// Rewrite orchestration
	AuditRewriteDecision AuditEventType = "rewrite_decision"
	AuditRewriteCycle    AuditEventType = "rewrite_cycle"
	AuditRewriteStopped  AuditEventType = "rewrite_stopped"

	// Escalations
	AuditEscalationOpened   AuditEventType = "escalation_opened"
	AuditEscalationResolved AuditEventType = "escalation_resolved"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	Timestamp int64                  `json:"ts"`               // Unix milliseconds
	EventType AuditEventType         `json:"event"`            //
	ActorID   string                 `json:"actor,omitempty"`  // Acting principal, if any
	BlogID    string                 `json:"blog,omitempty"`   //
	VersionID string                 `json:"version,omitempty"`
	Target    string                 `json:"target,omitempty"` // Run/cycle/escalation id
	Success   bool                   `json:"success"`          //
	Reason    string                 `json:"reason,omitempty"` // Failure or decision reason
	Message   string                 `json:"msg,omitempty"`    //
	Fields    map[string]interface{} `json:"fields,omitempty"` //
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit log file. Call once at startup after Initialize.
func InitAudit() error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}
	if workspace == "" {
		return fmt.Errorf("logging not initialized")
	}

	auditDir := filepath.Join(workspace, ".redline", "audit")
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(auditDir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit writes an audit event. Missing timestamps are filled in.
// Safe to call before InitAudit; events are dropped when no file is open
// (the database rows remain the authoritative record).
func Audit(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.WriteString(string(data) + "\n")
}
