package store

import (
	"database/sql"
	"errors"
	"time"

	"redline/internal/fault"
	"redline/internal/logging"
)

// GetReviewState returns the state machine position of a version.
func (s *ContentStore) GetReviewState(versionID string) (*ReviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getReviewState(versionID)
}

func (s *ContentStore) getReviewState(versionID string) (*ReviewState, error) {
	row := s.db.QueryRow(
		`SELECT version_id, blog_id, state, review_started_at, updated_at
		 FROM review_states WHERE version_id = ?`, versionID)

	var rs ReviewState
	var startedAt sql.NullString
	var updatedAt string
	err := row.Scan(&rs.VersionID, &rs.BlogID, &rs.State, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "version %s has no review state", versionID)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	rs.ReviewStartedAt = parseTimePtr(startedAt)
	rs.UpdatedAt = parseTime(updatedAt)
	return &rs, nil
}

// SetReviewState moves a version to a new state. Legality of the transition
// is the review machine's concern; the store only records it. Entering
// IN_REVIEW stamps review_started_at, leaving it clears the stamp.
func (s *ContentStore) SetReviewState(versionID, state string) (*ReviewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getReviewState(versionID)
	if err != nil {
		return nil, err
	}

	ts := now()
	var startedAt any
	if state == StateInReview {
		startedAt = fmtTime(ts)
		rs.ReviewStartedAt = &ts
	} else {
		startedAt = nil
		rs.ReviewStartedAt = nil
	}
	_, err = s.db.Exec(
		`UPDATE review_states SET state = ?, review_started_at = ?, updated_at = ?
		 WHERE version_id = ?`,
		state, startedAt, fmtTime(ts), versionID)
	if err != nil {
		return nil, mapErr(err)
	}
	rs.State = state
	rs.UpdatedAt = ts
	logging.ReviewDebug("Version %s moved to %s", versionID, state)
	return rs, nil
}

// ReviewStatesForBlog returns the state of every version of a blog.
func (s *ContentStore) ReviewStatesForBlog(blogID string) ([]*ReviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT version_id, blog_id, state, review_started_at, updated_at
		 FROM review_states WHERE blog_id = ? ORDER BY updated_at`, blogID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var states []*ReviewState
	for rows.Next() {
		var rs ReviewState
		var startedAt sql.NullString
		var updatedAt string
		if err := rows.Scan(&rs.VersionID, &rs.BlogID, &rs.State, &startedAt, &updatedAt); err != nil {
			return nil, mapErr(err)
		}
		rs.ReviewStartedAt = parseTimePtr(startedAt)
		rs.UpdatedAt = parseTime(updatedAt)
		states = append(states, &rs)
	}
	return states, mapErr(rows.Err())
}

// ListStaleInReview returns versions sitting in IN_REVIEW since before the
// cutoff. Used by the auto-archive sweep.
func (s *ContentStore) ListStaleInReview(cutoff time.Time) ([]*ReviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT version_id, blog_id, state, review_started_at, updated_at
		 FROM review_states
		 WHERE state = ? AND review_started_at IS NOT NULL AND review_started_at < ?`,
		StateInReview, fmtTime(cutoff))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var states []*ReviewState
	for rows.Next() {
		var rs ReviewState
		var startedAt sql.NullString
		var updatedAt string
		if err := rows.Scan(&rs.VersionID, &rs.BlogID, &rs.State, &startedAt, &updatedAt); err != nil {
			return nil, mapErr(err)
		}
		rs.ReviewStartedAt = parseTimePtr(startedAt)
		rs.UpdatedAt = parseTime(updatedAt)
		states = append(states, &rs)
	}
	return states, mapErr(rows.Err())
}

// LogReviewAction appends a human review event. The log is append-only and
// never rewritten, including for overrides.
func (s *ContentStore) LogReviewAction(versionID, reviewerID, action, comments string, isOverride bool) (*ReviewAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getVersion(versionID); err != nil {
		return nil, err
	}
	if _, err := s.getActor(reviewerID); err != nil {
		return nil, err
	}

	ra := &ReviewAction{
		ID:            newID(),
		BlogVersionID: versionID,
		ReviewerID:    reviewerID,
		Action:        action,
		Comments:      comments,
		IsOverride:    isOverride,
		PerformedAt:   now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO human_review_actions
			(id, blog_version_id, reviewer_id, action, comments, is_override, performed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ra.ID, ra.BlogVersionID, ra.ReviewerID, ra.Action,
		nullable(ra.Comments), boolToInt(ra.IsOverride), fmtTime(ra.PerformedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.ReviewDebug("Logged %s on version %s by %s", action, versionID, reviewerID)
	return ra, nil
}

// ReviewActions returns the action log of a version in order.
func (s *ContentStore) ReviewActions(versionID string) ([]*ReviewAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, blog_version_id, reviewer_id, action, comments, is_override, performed_at
		 FROM human_review_actions WHERE blog_version_id = ? ORDER BY rowid`, versionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectReviewActions(rows)
}

// CountSubmitEvents counts how many times any version of a blog entered
// review. This is the review cycle count the per-blog cap checks.
func (s *ContentStore) CountSubmitEvents(blogID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM human_review_actions a
		 JOIN blog_versions v ON v.id = a.blog_version_id
		 WHERE v.blog_id = ? AND a.action = ?`,
		blogID, ActionSubmitForReview,
	).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// CountRejectionsByReviewer counts REJECT actions by one reviewer since the
// cutoff, for the serial-rejector escalation rule.
func (s *ContentStore) CountRejectionsByReviewer(reviewerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM human_review_actions
		 WHERE reviewer_id = ? AND action = ? AND performed_at >= ?`,
		reviewerID, ActionReject, fmtTime(since),
	).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func collectReviewActions(rows *sql.Rows) ([]*ReviewAction, error) {
	var actions []*ReviewAction
	for rows.Next() {
		var ra ReviewAction
		var comments sql.NullString
		var isOverride int
		var performedAt string
		if err := rows.Scan(&ra.ID, &ra.BlogVersionID, &ra.ReviewerID, &ra.Action,
			&comments, &isOverride, &performedAt); err != nil {
			return nil, mapErr(err)
		}
		ra.Comments = comments.String
		ra.IsOverride = isOverride != 0
		ra.PerformedAt = parseTime(performedAt)
		actions = append(actions, &ra)
	}
	return actions, mapErr(rows.Err())
}
