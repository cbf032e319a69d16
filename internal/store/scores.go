package store

import (
	"database/sql"
	"errors"

	"redline/internal/fault"
	"redline/internal/logging"
)

// InsertDetectorScore records an AI-likeness score. Check-then-insert makes
// retried scorer tasks idempotent: a row already present for (run, provider)
// is returned as-is and nothing is written.
func (s *ContentStore) InsertDetectorScore(runID, provider string, score float64, details string) (*DetectorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score < 0 || score > 100 {
		return nil, fault.New(fault.Validation, "detector score %.2f out of range [0,100]", score)
	}

	existing, err := s.detectorScore(runID, provider)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.ScorerDebug("Detector score for run %s provider %s already present, skipping", runID, provider)
		return existing, nil
	}

	ds := &DetectorScore{
		ID:       newID(),
		RunID:    runID,
		Provider: provider,
		Score:    score,
		Details:  details,
	}
	_, err = s.db.Exec(
		`INSERT INTO ai_detector_scores (id, run_id, provider, score, details)
		 VALUES (?, ?, ?, ?, ?)`,
		ds.ID, ds.RunID, ds.Provider, ds.Score, nullable(ds.Details),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Scorer("Detector %s scored run %s: %.2f", provider, runID, score)
	return ds, nil
}

func (s *ContentStore) detectorScore(runID, provider string) (*DetectorScore, error) {
	row := s.db.QueryRow(
		`SELECT id, run_id, provider, score, details FROM ai_detector_scores
		 WHERE run_id = ? AND provider = ?`, runID, provider)

	var ds DetectorScore
	var details sql.NullString
	err := row.Scan(&ds.ID, &ds.RunID, &ds.Provider, &ds.Score, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	ds.Details = details.String
	return &ds, nil
}

// DetectorScoresForRun lists the AI-likeness scores of a run.
func (s *ContentStore) DetectorScoresForRun(runID string) ([]*DetectorScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, provider, score, details FROM ai_detector_scores
		 WHERE run_id = ? ORDER BY provider`, runID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var scores []*DetectorScore
	for rows.Next() {
		var ds DetectorScore
		var details sql.NullString
		if err := rows.Scan(&ds.ID, &ds.RunID, &ds.Provider, &ds.Score, &details); err != nil {
			return nil, mapErr(err)
		}
		ds.Details = details.String
		scores = append(scores, &ds)
	}
	return scores, mapErr(rows.Err())
}

// InsertAEOScore records an AEO score for one query intent. Same idempotency
// contract as InsertDetectorScore.
func (s *ContentStore) InsertAEOScore(runID, queryIntent string, score float64, rationale, details string) (*AEOScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score < 0 || score > 100 {
		return nil, fault.New(fault.Validation, "aeo score %.2f out of range [0,100]", score)
	}

	existing, err := s.aeoScore(runID, queryIntent)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.AEODebug("AEO score for run %s intent %s already present, skipping", runID, queryIntent)
		return existing, nil
	}

	as := &AEOScore{
		ID:          newID(),
		RunID:       runID,
		QueryIntent: queryIntent,
		Score:       score,
		Rationale:   rationale,
		Details:     details,
	}
	_, err = s.db.Exec(
		`INSERT INTO aeo_scores (id, run_id, query_intent, score, rationale, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		as.ID, as.RunID, as.QueryIntent, as.Score,
		nullable(as.Rationale), nullable(as.Details),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.AEO("AEO scored run %s intent %s: %.2f", runID, queryIntent, score)
	return as, nil
}

func (s *ContentStore) aeoScore(runID, queryIntent string) (*AEOScore, error) {
	row := s.db.QueryRow(
		`SELECT id, run_id, query_intent, score, rationale, details FROM aeo_scores
		 WHERE run_id = ? AND query_intent = ?`, runID, queryIntent)

	var as AEOScore
	var rationale, details sql.NullString
	err := row.Scan(&as.ID, &as.RunID, &as.QueryIntent, &as.Score, &rationale, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	as.Rationale = rationale.String
	as.Details = details.String
	return &as, nil
}

// AEOScoresForRun lists the AEO scores of a run.
func (s *ContentStore) AEOScoresForRun(runID string) ([]*AEOScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, query_intent, score, rationale, details FROM aeo_scores
		 WHERE run_id = ? ORDER BY query_intent`, runID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var scores []*AEOScore
	for rows.Next() {
		var as AEOScore
		var rationale, details sql.NullString
		if err := rows.Scan(&as.ID, &as.RunID, &as.QueryIntent, &as.Score, &rationale, &details); err != nil {
			return nil, mapErr(err)
		}
		as.Rationale = rationale.String
		as.Details = details.String
		scores = append(scores, &as)
	}
	return scores, mapErr(rows.Err())
}
