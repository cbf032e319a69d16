package store

import (
	"database/sql"
	"errors"
	"strings"

	"redline/internal/fault"
	"redline/internal/logging"
)

// CreateBlog registers a new piece of content. The identity row carries no
// text; all content lives in versions.
func (s *ContentStore) CreateBlog(name, projectID, createdBy string) (*Blog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fault.New(fault.Validation, "blog name cannot be empty")
	}
	if _, err := s.getActor(createdBy); err != nil {
		return nil, err
	}

	b := &Blog{
		ID:        newID(),
		Name:      name,
		ProjectID: projectID,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO blogs (id, name, project_id, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Name, nullable(b.ProjectID), b.CreatedBy, fmtTime(b.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.Store("Created blog %s (%s)", b.ID, b.Name)
	return b, nil
}

// GetBlog fetches a blog by id.
func (s *ContentStore) GetBlog(id string) (*Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBlog(id)
}

func (s *ContentStore) getBlog(id string) (*Blog, error) {
	row := s.db.QueryRow(
		`SELECT id, name, project_id, created_by, created_at FROM blogs WHERE id = ?`, id)

	var b Blog
	var projectID sql.NullString
	var createdAt string
	if err := row.Scan(&b.ID, &b.Name, &projectID, &b.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.Validation, "blog %s not found", id)
		}
		return nil, mapErr(err)
	}
	b.ProjectID = projectID.String
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// ListBlogs returns all blogs ordered by creation time.
func (s *ContentStore) ListBlogs() ([]*Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, name, project_id, created_by, created_at FROM blogs ORDER BY created_at`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var blogs []*Blog
	for rows.Next() {
		var b Blog
		var projectID sql.NullString
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &projectID, &b.CreatedBy, &createdAt); err != nil {
			return nil, mapErr(err)
		}
		b.ProjectID = projectID.String
		b.CreatedAt = parseTime(createdAt)
		blogs = append(blogs, &b)
	}
	return blogs, mapErr(rows.Err())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
