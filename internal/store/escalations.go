package store

import (
	"database/sql"
	"errors"

	"redline/internal/fault"
	"redline/internal/logging"
)

// OpenEscalation records an automation hard-stop for a blog. A duplicate
// open escalation with the same reason is returned instead of inserted, so
// repeated detection of one condition does not pile up rows.
func (s *ContentStore) OpenEscalation(blogID, versionID, reason, details string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch reason {
	case EscalationScoreRegression, EscalationPolicyViolation, EscalationAmbiguity, EscalationLowQuality:
	default:
		return nil, fault.New(fault.Validation, "unknown escalation reason %q", reason)
	}
	if _, err := s.getBlog(blogID); err != nil {
		return nil, err
	}
	if _, err := s.getVersion(versionID); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE blog_id = ? AND reason = ? AND status = ?
		 ORDER BY rowid DESC LIMIT 1`,
		blogID, reason, EscalationPending)
	existing, err := scanEscalation(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		logging.ReviewDebug("Escalation %s already open for blog %s (%s)", existing.ID, blogID, reason)
		return existing, nil
	}

	e := &Escalation{
		ID:        newID(),
		BlogID:    blogID,
		VersionID: versionID,
		Reason:    reason,
		Details:   details,
		Status:    EscalationPending,
		CreatedAt: now(),
	}
	_, err = s.db.Exec(
		`INSERT INTO escalations
			(id, blog_id, version_id, reason, details, status, created_at, resolved_at, resolved_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		e.ID, e.BlogID, e.VersionID, e.Reason, nullable(e.Details),
		e.Status, fmtTime(e.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditEscalationOpened,
		BlogID:    blogID,
		VersionID: versionID,
		Target:    e.ID,
		Success:   true,
		Reason:    reason,
		Message:   details,
	})
	logging.Review("Escalation opened for blog %s: %s", blogID, reason)
	return e, nil
}

// ResolveEscalation closes an open escalation. Only humans resolve; the
// final status is resolved or dismissed.
func (s *ContentStore) ResolveEscalation(escalationID, resolvedBy, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status != EscalationResolved && status != EscalationDismissed {
		return fault.New(fault.Validation, "invalid resolution status %q", status)
	}
	actor, err := s.getActor(resolvedBy)
	if err != nil {
		return err
	}
	if !actor.IsHuman {
		return fault.New(fault.Forbidden, "actor %s is not human; escalations require a human to resolve", actor.ID)
	}

	res, err := s.db.Exec(
		`UPDATE escalations SET status = ?, resolved_at = ?, resolved_by = ?
		 WHERE id = ? AND status = ?`,
		status, fmtTime(now()), resolvedBy, escalationID, EscalationPending)
	if err != nil {
		return mapErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fault.New(fault.InvalidState, "escalation %s is not pending", escalationID)
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditEscalationResolved,
		ActorID:   resolvedBy,
		Target:    escalationID,
		Success:   true,
		Reason:    status,
	})
	logging.Review("Escalation %s closed as %s by %s", escalationID, status, resolvedBy)
	return nil
}

// IsEscalated reports whether a blog has any open escalation. There is no
// escalated flag anywhere; this query is the definition.
func (s *ContentStore) IsEscalated(blogID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isEscalated(blogID)
}

func (s *ContentStore) isEscalated(blogID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM escalations WHERE blog_id = ? AND status = ?`,
		blogID, EscalationPending,
	).Scan(&count)
	if err != nil {
		return false, mapErr(err)
	}
	return count > 0, nil
}

// GetEscalation fetches an escalation by id.
func (s *ContentStore) GetEscalation(id string) (*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id)
	e, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "escalation %s not found", id)
	}
	return e, err
}

// ListEscalations returns escalations, optionally filtered to one status.
func (s *ContentStore) ListEscalations(status string) ([]*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + escalationColumns + ` FROM escalations`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var escalations []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, e)
	}
	return escalations, mapErr(rows.Err())
}

const escalationColumns = `id, blog_id, version_id, reason, details, status,
	created_at, resolved_at, resolved_by`

func scanEscalation(row rowScanner) (*Escalation, error) {
	var e Escalation
	var details, resolvedAt, resolvedBy sql.NullString
	var createdAt string
	err := row.Scan(&e.ID, &e.BlogID, &e.VersionID, &e.Reason, &details,
		&e.Status, &createdAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	e.Details = details.String
	e.CreatedAt = parseTime(createdAt)
	e.ResolvedAt = parseTimePtr(resolvedAt)
	e.ResolvedBy = resolvedBy.String
	return &e, nil
}
