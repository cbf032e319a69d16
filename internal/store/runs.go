package store

import (
	"database/sql"
	"errors"

	"redline/internal/fault"
	"redline/internal/logging"
)

// CreateEvaluationRun opens an evaluation envelope in processing status.
// triggeredBy may be empty for system-triggered runs.
func (s *ContentStore) CreateEvaluationRun(versionID, triggeredBy, modelConfig string) (*EvaluationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getVersion(versionID); err != nil {
		return nil, err
	}
	if triggeredBy != "" {
		if _, err := s.getActor(triggeredBy); err != nil {
			return nil, err
		}
	}

	run := &EvaluationRun{
		ID:            newID(),
		BlogVersionID: versionID,
		RunAt:         now(),
		TriggeredBy:   triggeredBy,
		ModelConfig:   modelConfig,
		Status:        RunProcessing,
	}
	_, err := s.db.Exec(
		`INSERT INTO evaluation_runs
			(id, blog_version_id, run_at, triggered_by, model_config, status, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, run.BlogVersionID, fmtTime(run.RunAt),
		nullable(run.TriggeredBy), nullable(run.ModelConfig), run.Status,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Pipeline("Opened evaluation run %s for version %s", run.ID, versionID)
	return run, nil
}

// GetEvaluationRun fetches a run by id.
func (s *ContentStore) GetEvaluationRun(id string) (*EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+runColumns+` FROM evaluation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "evaluation run %s not found", id)
	}
	return run, err
}

// ProcessingRunForVersion returns the open run for a version, or nil. The
// pipeline treats an open run as "evaluation already in flight" and returns
// it instead of starting another.
func (s *ContentStore) ProcessingRunForVersion(versionID string) (*EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT `+runColumns+` FROM evaluation_runs
		 WHERE blog_version_id = ? AND status = ?
		 ORDER BY run_at DESC LIMIT 1`, versionID, RunProcessing)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// FinalizeRun advances a run out of processing. The triggers reject any
// second finalization, so a double call surfaces as an internal fault.
func (s *ContentStore) FinalizeRun(runID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch status {
	case RunCompleted, RunPartialFailure, RunFailed:
	default:
		return fault.New(fault.Validation, "invalid final run status %q", status)
	}
	res, err := s.db.Exec(
		`UPDATE evaluation_runs SET status = ?, completed_at = ? WHERE id = ?`,
		status, fmtTime(now()), runID)
	if err != nil {
		return mapErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fault.New(fault.Validation, "evaluation run %s not found", runID)
	}
	logging.Pipeline("Finalized run %s as %s", runID, status)
	return nil
}

// LatestCompletedRunForBlog returns the newest run of any version of the
// blog that finished with usable scores (completed or partial_failure), or
// nil when the blog has never been evaluated.
func (s *ContentStore) LatestCompletedRunForBlog(blogID string) (*EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT r.id, r.blog_version_id, r.run_at, r.triggered_by, r.model_config,
		        r.status, r.completed_at
		 FROM evaluation_runs r
		 JOIN blog_versions v ON v.id = r.blog_version_id
		 WHERE v.blog_id = ? AND r.status IN (?, ?)
		 ORDER BY r.run_at DESC LIMIT 1`,
		blogID, RunCompleted, RunPartialFailure)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// LatestCompletedRunForVersion returns the newest finished run of a version,
// or nil.
func (s *ContentStore) LatestCompletedRunForVersion(versionID string) (*EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT `+runColumns+` FROM evaluation_runs
		 WHERE blog_version_id = ? AND status IN (?, ?)
		 ORDER BY run_at DESC LIMIT 1`,
		versionID, RunCompleted, RunPartialFailure)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// RunsForVersion lists all runs of a version, newest first.
func (s *ContentStore) RunsForVersion(versionID string) ([]*EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM evaluation_runs
		 WHERE blog_version_id = ? ORDER BY run_at DESC`, versionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var runs []*EvaluationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, mapErr(rows.Err())
}

const runColumns = `id, blog_version_id, run_at, triggered_by, model_config, status, completed_at`

func scanRun(row rowScanner) (*EvaluationRun, error) {
	var run EvaluationRun
	var runAt string
	var triggeredBy, modelConfig, completedAt sql.NullString
	err := row.Scan(&run.ID, &run.BlogVersionID, &runAt, &triggeredBy,
		&modelConfig, &run.Status, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	run.RunAt = parseTime(runAt)
	run.TriggeredBy = triggeredBy.String
	run.ModelConfig = modelConfig.String
	run.CompletedAt = parseTimePtr(completedAt)
	return &run, nil
}
