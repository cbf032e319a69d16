package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"redline/internal/fault"
	"redline/internal/logging"
)

// AppendVersionParams carries everything needed to append a snapshot.
type AppendVersionParams struct {
	BlogID               string
	ParentVersionID      string // empty only for the root version
	Content              string
	Source               string
	SourceRewriteCycleID string // required iff Source == ai_rewrite
	ChangeReason         string
	CreatedBy            string
}

// AppendVersion appends an immutable content snapshot. Version numbers are
// assigned inside a transaction so concurrent appends to the same blog
// serialize instead of colliding. The new version starts in DRAFT.
func (s *ContentStore) AppendVersion(p AppendVersionParams) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "AppendVersion")
	defer timer.Stop()

	if strings.TrimSpace(p.Content) == "" {
		return nil, fault.New(fault.Validation, "version content cannot be empty")
	}
	switch p.Source {
	case SourceHumanPaste, SourceAIRewrite, SourceHumanEdit:
	default:
		return nil, fault.New(fault.Validation, "unknown version source %q", p.Source)
	}
	if p.Source == SourceAIRewrite && p.SourceRewriteCycleID == "" {
		return nil, fault.New(fault.Validation, "ai_rewrite versions must reference their rewrite cycle")
	}
	if p.Source != SourceAIRewrite && p.SourceRewriteCycleID != "" {
		return nil, fault.New(fault.Validation, "only ai_rewrite versions may reference a rewrite cycle")
	}
	if _, err := s.getBlog(p.BlogID); err != nil {
		return nil, err
	}
	if _, err := s.getActor(p.CreatedBy); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback()

	var maxNum sql.NullInt64
	err = tx.QueryRow(
		`SELECT MAX(version_number) FROM blog_versions WHERE blog_id = ?`, p.BlogID,
	).Scan(&maxNum)
	if err != nil {
		return nil, mapErr(err)
	}
	versionNumber := int(maxNum.Int64) + 1

	if p.ParentVersionID == "" {
		if versionNumber != 1 {
			return nil, fault.New(fault.Validation,
				"blog %s already has versions; parent_version_id is required", p.BlogID)
		}
	} else {
		var parentBlogID string
		err = tx.QueryRow(
			`SELECT blog_id FROM blog_versions WHERE id = ?`, p.ParentVersionID,
		).Scan(&parentBlogID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.Validation, "parent version %s not found", p.ParentVersionID)
		}
		if err != nil {
			return nil, mapErr(err)
		}
		if parentBlogID != p.BlogID {
			return nil, fault.New(fault.Validation,
				"parent version %s belongs to a different blog", p.ParentVersionID)
		}
	}

	hash := sha256.Sum256([]byte(p.Content))
	v := &Version{
		ID:                   newID(),
		BlogID:               p.BlogID,
		ParentVersionID:      p.ParentVersionID,
		Content:              p.Content,
		ContentHash:          hex.EncodeToString(hash[:]),
		VersionNumber:        versionNumber,
		Source:               p.Source,
		SourceRewriteCycleID: p.SourceRewriteCycleID,
		ChangeReason:         p.ChangeReason,
		CreatedBy:            p.CreatedBy,
		CreatedAt:            now(),
	}
	_, err = tx.Exec(
		`INSERT INTO blog_versions
			(id, blog_id, parent_version_id, content, content_hash, version_number,
			 source, source_rewrite_cycle_id, change_reason, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.BlogID, nullable(v.ParentVersionID), v.Content, v.ContentHash,
		v.VersionNumber, v.Source, nullable(v.SourceRewriteCycleID),
		nullable(v.ChangeReason), v.CreatedBy, fmtTime(v.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}

	// Every version enters the review machine in DRAFT.
	_, err = tx.Exec(
		`INSERT INTO review_states (version_id, blog_id, state, review_started_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?)`,
		v.ID, v.BlogID, StateDraft, fmtTime(v.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	logging.Store("Appended version %d of blog %s (source=%s)", v.VersionNumber, v.BlogID, v.Source)
	return v, nil
}

// GetVersion fetches a snapshot by id.
func (s *ContentStore) GetVersion(id string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVersion(id)
}

func (s *ContentStore) getVersion(id string) (*Version, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM blog_versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "version %s not found", id)
	}
	return v, err
}

// GetVersionByNumber fetches a snapshot by (blog, version number).
func (s *ContentStore) GetVersionByNumber(blogID string, number int) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT `+versionColumns+` FROM blog_versions WHERE blog_id = ? AND version_number = ?`,
		blogID, number)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "blog %s has no version %d", blogID, number)
	}
	return v, err
}

// LatestVersion returns the highest-numbered snapshot of a blog, or a
// validation fault if the blog has none.
func (s *ContentStore) LatestVersion(blogID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestVersion(blogID)
}

func (s *ContentStore) latestVersion(blogID string) (*Version, error) {
	row := s.db.QueryRow(
		`SELECT `+versionColumns+` FROM blog_versions
		 WHERE blog_id = ? ORDER BY version_number DESC LIMIT 1`, blogID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "blog %s has no versions", blogID)
	}
	return v, err
}

// ListVersions returns every snapshot of a blog in version order.
func (s *ContentStore) ListVersions(blogID string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+versionColumns+` FROM blog_versions
		 WHERE blog_id = ? ORDER BY version_number`, blogID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, mapErr(rows.Err())
}

const versionColumns = `id, blog_id, parent_version_id, content, content_hash,
	version_number, source, source_rewrite_cycle_id, change_reason, created_by, created_at`

func scanVersion(row rowScanner) (*Version, error) {
	var v Version
	var parent, cycleID, reason sql.NullString
	var createdAt string
	err := row.Scan(&v.ID, &v.BlogID, &parent, &v.Content, &v.ContentHash,
		&v.VersionNumber, &v.Source, &cycleID, &reason, &v.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	v.ParentVersionID = parent.String
	v.SourceRewriteCycleID = cycleID.String
	v.ChangeReason = reason.String
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}
