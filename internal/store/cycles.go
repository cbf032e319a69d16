package store

import (
	"database/sql"
	"errors"

	"redline/internal/fault"
	"redline/internal/logging"
)

// InsertRewriteCycleParams carries the write-once portion of a cycle. The
// prompt is stored verbatim before the external call so the audit trail
// survives a crash mid-cycle.
type InsertRewriteCycleParams struct {
	ParentVersionID string
	CycleNumber     int
	TriggerReasons  string // JSON array of trigger ids
	TriggerData     string // JSON evidence
	RewritePrompt   string
	ParentScores    string // JSON aggregate snapshot
}

// InsertRewriteCycle opens a cycle in pending status.
func (s *ContentStore) InsertRewriteCycle(p InsertRewriteCycleParams) (*RewriteCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getVersion(p.ParentVersionID); err != nil {
		return nil, err
	}
	if p.RewritePrompt == "" {
		return nil, fault.New(fault.Validation, "rewrite cycle requires a prompt")
	}

	c := &RewriteCycle{
		ID:              newID(),
		ParentVersionID: p.ParentVersionID,
		CycleNumber:     p.CycleNumber,
		TriggerReasons:  p.TriggerReasons,
		TriggerData:     p.TriggerData,
		RewritePrompt:   p.RewritePrompt,
		ParentScores:    p.ParentScores,
		RewriteStatus:   CyclePending,
		CreatedAt:       now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO rewrite_cycles
			(id, parent_version_id, child_version_id, cycle_number, trigger_reasons,
			 trigger_data, rewrite_prompt, parent_scores, child_scores,
			 trend_outcome, trend_code, rewrite_status, stop_reason, created_at)
		 VALUES (?, ?, NULL, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, NULL, ?)`,
		c.ID, c.ParentVersionID, c.CycleNumber, c.TriggerReasons,
		nullable(c.TriggerData), c.RewritePrompt, nullable(c.ParentScores),
		c.RewriteStatus, fmtTime(c.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Rewrite("Opened rewrite cycle %d on version %s", c.CycleNumber, c.ParentVersionID)
	return c, nil
}

// CompleteCycle closes a pending cycle with its child version and outcome.
func (s *ContentStore) CompleteCycle(cycleID, childVersionID, childScores, trendOutcome string, trendCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE rewrite_cycles
		 SET child_version_id = ?, child_scores = ?, trend_outcome = ?,
		     trend_code = ?, rewrite_status = ?
		 WHERE id = ? AND rewrite_status = ?`,
		childVersionID, nullable(childScores), trendOutcome, trendCode,
		CycleCompleted, cycleID, CyclePending)
	if err != nil {
		return mapErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fault.New(fault.InvalidState, "rewrite cycle %s is not pending", cycleID)
	}
	logging.Rewrite("Cycle %s completed: %s", cycleID, trendOutcome)
	return nil
}

// MarkCycleTerminal closes a cycle without a child, recording why automation
// stopped. Used for rewriter failures and loop-breaking stops.
func (s *ContentStore) MarkCycleTerminal(cycleID, stopReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stopReason == "" {
		return fault.New(fault.Validation, "terminal cycles require a stop reason")
	}
	res, err := s.db.Exec(
		`UPDATE rewrite_cycles SET rewrite_status = ?, stop_reason = ?
		 WHERE id = ? AND rewrite_status = ?`,
		CycleTerminal, stopReason, cycleID, CyclePending)
	if err != nil {
		return mapErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fault.New(fault.InvalidState, "rewrite cycle %s is not pending", cycleID)
	}
	logging.Rewrite("Cycle %s terminal: %s", cycleID, stopReason)
	return nil
}

// GetRewriteCycle fetches a cycle by id.
func (s *ContentStore) GetRewriteCycle(id string) (*RewriteCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+cycleColumns+` FROM rewrite_cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "rewrite cycle %s not found", id)
	}
	return c, err
}

// CyclesForParent lists cycles opened on a version in cycle order.
func (s *ContentStore) CyclesForParent(parentVersionID string) ([]*RewriteCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+cycleColumns+` FROM rewrite_cycles
		 WHERE parent_version_id = ? ORDER BY cycle_number`, parentVersionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectCycles(rows)
}

// CyclesForBlog lists every cycle across all versions of a blog in creation
// order. The loop-breaking rules read recent history from this.
func (s *ContentStore) CyclesForBlog(blogID string) ([]*RewriteCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT c.id, c.parent_version_id, c.child_version_id, c.cycle_number,
		        c.trigger_reasons, c.trigger_data, c.rewrite_prompt, c.parent_scores,
		        c.child_scores, c.trend_outcome, c.trend_code, c.rewrite_status,
		        c.stop_reason, c.created_at
		 FROM rewrite_cycles c
		 JOIN blog_versions v ON v.id = c.parent_version_id
		 WHERE v.blog_id = ? ORDER BY c.rowid`, blogID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectCycles(rows)
}

// CycleCountForBlog counts cycles across the whole version lineage, for the
// per-blog cap.
func (s *ContentStore) CycleCountForBlog(blogID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM rewrite_cycles c
		 JOIN blog_versions v ON v.id = c.parent_version_id
		 WHERE v.blog_id = ?`, blogID,
	).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// MaxCycleNumber returns the highest cycle number opened on a version, zero
// when none.
func (s *ContentStore) MaxCycleNumber(parentVersionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxNum sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(cycle_number) FROM rewrite_cycles WHERE parent_version_id = ?`,
		parentVersionID,
	).Scan(&maxNum)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(maxNum.Int64), nil
}

const cycleColumns = `id, parent_version_id, child_version_id, cycle_number,
	trigger_reasons, trigger_data, rewrite_prompt, parent_scores, child_scores,
	trend_outcome, trend_code, rewrite_status, stop_reason, created_at`

func scanCycle(row rowScanner) (*RewriteCycle, error) {
	var c RewriteCycle
	var child, triggerData, parentScores, childScores sql.NullString
	var trendOutcome, stopReason sql.NullString
	var trendCode sql.NullInt64
	var createdAt string
	err := row.Scan(&c.ID, &c.ParentVersionID, &child, &c.CycleNumber,
		&c.TriggerReasons, &triggerData, &c.RewritePrompt, &parentScores,
		&childScores, &trendOutcome, &trendCode, &c.RewriteStatus,
		&stopReason, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	c.ChildVersionID = child.String
	c.TriggerData = triggerData.String
	c.ParentScores = parentScores.String
	c.ChildScores = childScores.String
	c.TrendOutcome = trendOutcome.String
	c.TrendCode = int(trendCode.Int64)
	c.StopReason = stopReason.String
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func collectCycles(rows *sql.Rows) ([]*RewriteCycle, error) {
	var cycles []*RewriteCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, mapErr(rows.Err())
}
