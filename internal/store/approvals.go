package store

import (
	"database/sql"
	"errors"
	"time"

	"redline/internal/fault"
	"redline/internal/logging"
)

// FastApprovalNote is appended to approval notes when the review machine
// classifies an approval as rubber-stamped. CountFastApprovals keys off it.
const FastApprovalNote = "fast approval"

// RecordApprovalParams carries an approval request.
type RecordApprovalParams struct {
	BlogID     string
	VersionID  string
	ApproverID string
	Notes      string
}

// RecordApproval declares a version approved. The humanity check lives here,
// below the review machine, so no automation path can mint an approval: a
// non-human actor is rejected and the attempt is logged either way.
// Re-recording the active approval (same version, same approver, nothing
// revoked in between) returns the existing row instead of inserting a
// duplicate.
func (s *ContentStore) RecordApproval(p RecordApprovalParams) (*ApprovalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.getActor(p.ApproverID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHuman {
		s.logAttempt(p.BlogID, actor, AttemptForbidden, "approver is not human")
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditApprovalAttempt,
			ActorID:   actor.ID,
			BlogID:    p.BlogID,
			VersionID: p.VersionID,
			Success:   false,
			Reason:    "approver is not human",
		})
		return nil, fault.New(fault.Forbidden, "actor %s is not human; approvals require a human", actor.ID)
	}

	version, err := s.getVersion(p.VersionID)
	if err != nil {
		s.logAttempt(p.BlogID, actor, AttemptInvalidVersion, "version not found")
		return nil, err
	}
	if version.BlogID != p.BlogID {
		s.logAttempt(p.BlogID, actor, AttemptInvalidVersion, "version belongs to a different blog")
		return nil, fault.New(fault.InvalidVersion,
			"version %s does not belong to blog %s", p.VersionID, p.BlogID)
	}

	current, err := s.currentApproval(p.BlogID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.ApprovedVersionID == p.VersionID && current.ApproverID == p.ApproverID {
		return current, nil
	}

	a := &ApprovalState{
		ID:                newID(),
		BlogID:            p.BlogID,
		ApprovedVersionID: p.VersionID,
		ApproverID:        p.ApproverID,
		ApprovedAt:        now(),
		Notes:             p.Notes,
	}
	_, err = s.db.Exec(
		`INSERT INTO approval_states
			(id, blog_id, approved_version_id, approver_id, approved_at,
			 revoked_at, revoked_by, revocation_reason, notes)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, ?)`,
		a.ID, a.BlogID, a.ApprovedVersionID, a.ApproverID,
		fmtTime(a.ApprovedAt), nullable(a.Notes),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	s.logAttempt(p.BlogID, actor, AttemptSuccess, "")
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditApprovalGranted,
		ActorID:   actor.ID,
		BlogID:    p.BlogID,
		VersionID: p.VersionID,
		Success:   true,
		Message:   p.Notes,
	})
	logging.Store("Approval recorded for blog %s version %s by %s", p.BlogID, p.VersionID, actor.ID)
	return a, nil
}

// RevokeApproval withdraws the current approval. Rows being write-once, the
// revocation is a new row carrying the original approval plus the revocation
// fields; the history stays intact.
func (s *ContentStore) RevokeApproval(blogID, revokedBy, reason string) (*ApprovalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.getActor(revokedBy)
	if err != nil {
		return nil, err
	}
	if !actor.IsHuman {
		return nil, fault.New(fault.Forbidden, "actor %s is not human; revocations require a human", actor.ID)
	}
	if reason == "" {
		return nil, fault.New(fault.Validation, "revocation requires a reason")
	}

	current, err := s.currentApproval(blogID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fault.New(fault.InvalidState, "blog %s has no active approval", blogID)
	}

	revokedAt := now()
	rev := &ApprovalState{
		ID:                newID(),
		BlogID:            current.BlogID,
		ApprovedVersionID: current.ApprovedVersionID,
		ApproverID:        current.ApproverID,
		ApprovedAt:        current.ApprovedAt,
		RevokedAt:         &revokedAt,
		RevokedBy:         revokedBy,
		RevocationReason:  reason,
		Notes:             current.Notes,
	}
	_, err = s.db.Exec(
		`INSERT INTO approval_states
			(id, blog_id, approved_version_id, approver_id, approved_at,
			 revoked_at, revoked_by, revocation_reason, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.BlogID, rev.ApprovedVersionID, rev.ApproverID,
		fmtTime(rev.ApprovedAt), fmtTime(revokedAt), revokedBy, reason,
		nullable(rev.Notes),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditApprovalRevoked,
		ActorID:   revokedBy,
		BlogID:    blogID,
		VersionID: current.ApprovedVersionID,
		Success:   true,
		Reason:    reason,
	})
	logging.Store("Approval revoked for blog %s by %s: %s", blogID, revokedBy, reason)
	return rev, nil
}

// CurrentApproval returns the active approval of a blog, or nil when none is
// active. The log is read as an event stream: the newest row wins outright,
// and a revocation row means no active approval. Older grants that were
// never individually revoked do not resurface; selecting the newest
// non-revoked row instead would quietly re-approve stale content after a
// revoke-then-reapprove-then-revoke sequence.
func (s *ContentStore) CurrentApproval(blogID string) (*ApprovalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentApproval(blogID)
}

func (s *ContentStore) currentApproval(blogID string) (*ApprovalState, error) {
	row := s.db.QueryRow(
		`SELECT `+approvalColumns+` FROM approval_states
		 WHERE blog_id = ? ORDER BY rowid DESC LIMIT 1`, blogID)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.RevokedAt != nil {
		return nil, nil
	}
	return a, nil
}

// ApprovedVersionID returns the currently approved version of a blog, or
// empty when none.
func (s *ContentStore) ApprovedVersionID(blogID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := s.currentApproval(blogID)
	if err != nil || a == nil {
		return "", err
	}
	return a.ApprovedVersionID, nil
}

// ApprovalHistory returns every approval and revocation row of a blog in
// insertion order.
func (s *ContentStore) ApprovalHistory(blogID string) ([]*ApprovalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+approvalColumns+` FROM approval_states
		 WHERE blog_id = ? ORDER BY rowid`, blogID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var history []*ApprovalState
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	return history, mapErr(rows.Err())
}

// LogApprovalAttempt records a gate failure observed above the store, such
// as an approval attempted outside IN_REVIEW.
func (s *ContentStore) LogApprovalAttempt(blogID, actorID, result, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, err := s.getActor(actorID)
	if err != nil {
		return err
	}
	return s.logAttempt(blogID, actor, result, failureReason)
}

func (s *ContentStore) logAttempt(blogID string, actor *Actor, result, failureReason string) error {
	_, err := s.db.Exec(
		`INSERT INTO approval_attempts
			(id, blog_id, attempted_by, is_human, result, attempted_at, failure_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), blogID, actor.ID, boolToInt(actor.IsHuman), result,
		fmtTime(now()), nullable(failureReason),
	)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// ApprovalAttempts returns the attempt audit trail of a blog.
func (s *ContentStore) ApprovalAttempts(blogID string) ([]*ApprovalAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, blog_id, attempted_by, is_human, result, attempted_at, failure_reason
		 FROM approval_attempts WHERE blog_id = ? ORDER BY rowid`, blogID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var attempts []*ApprovalAttempt
	for rows.Next() {
		var a ApprovalAttempt
		var isHuman int
		var attemptedAt string
		var failureReason sql.NullString
		if err := rows.Scan(&a.ID, &a.BlogID, &a.AttemptedBy, &isHuman,
			&a.Result, &attemptedAt, &failureReason); err != nil {
			return nil, mapErr(err)
		}
		a.IsHuman = isHuman != 0
		a.AttemptedAt = parseTime(attemptedAt)
		a.FailureReason = failureReason.String
		attempts = append(attempts, &a)
	}
	return attempts, mapErr(rows.Err())
}

// CountFastApprovals counts approvals by one reviewer inside the window that
// the review machine flagged as rubber-stamped.
func (s *ContentStore) CountFastApprovals(approverID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM approval_states
		 WHERE approver_id = ? AND revoked_at IS NULL
		   AND approved_at >= ? AND notes LIKE '%' || ? || '%'`,
		approverID, fmtTime(since), FastApprovalNote,
	).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

const approvalColumns = `id, blog_id, approved_version_id, approver_id,
	approved_at, revoked_at, revoked_by, revocation_reason, notes`

func scanApproval(row rowScanner) (*ApprovalState, error) {
	var a ApprovalState
	var approvedAt string
	var revokedAt, revokedBy, reason, notes sql.NullString
	err := row.Scan(&a.ID, &a.BlogID, &a.ApprovedVersionID, &a.ApproverID,
		&approvedAt, &revokedAt, &revokedBy, &reason, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	a.ApprovedAt = parseTime(approvedAt)
	a.RevokedAt = parseTimePtr(revokedAt)
	a.RevokedBy = revokedBy.String
	a.RevocationReason = reason.String
	a.Notes = notes.String
	return &a, nil
}
