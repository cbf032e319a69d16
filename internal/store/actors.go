package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"redline/internal/fault"
	"redline/internal/logging"
)

// CreateActor registers a principal. Email must be unique; a system actor
// can never be marked human (the schema rejects it too).
func (s *ContentStore) CreateActor(email, role string, isHuman bool) (*Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fault.New(fault.Validation, "actor email cannot be empty")
	}
	switch role {
	case RoleWriter, RoleReviewer, RoleAdmin, RoleSystem:
	default:
		return nil, fault.New(fault.Validation, "unknown actor role %q", role)
	}
	if role == RoleSystem && isHuman {
		return nil, fault.New(fault.Validation, "system actors cannot be human")
	}

	a := &Actor{
		ID:        newID(),
		Email:     email,
		Role:      role,
		IsHuman:   isHuman,
		CreatedAt: now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO actors (id, email, role, is_human, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Role, boolToInt(a.IsHuman), fmtTime(a.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	logging.StoreDebug("Created actor %s role=%s human=%v", a.ID, a.Role, a.IsHuman)
	return a, nil
}

// SetHumanFlag toggles an actor's humanity flag. The flag is the root of the
// approval chain, so only admins may touch it, and a system actor can never
// be marked human. Setting the current value is a no-op.
func (s *ContentStore) SetHumanFlag(actorID, adminID string, value bool) (*Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, err := s.getActor(adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != RoleAdmin {
		return nil, fault.New(fault.Forbidden,
			"actor %s is not an admin; the humanity flag is admin-only", adminID)
	}
	target, err := s.getActor(actorID)
	if err != nil {
		return nil, err
	}
	if target.Role == RoleSystem && value {
		return nil, fault.New(fault.Validation, "system actors cannot be human")
	}
	if target.IsHuman == value {
		return target, nil
	}

	_, err = s.db.Exec(`UPDATE actors SET is_human = ? WHERE id = ?`, boolToInt(value), actorID)
	if err != nil {
		return nil, mapErr(err)
	}
	target.IsHuman = value
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditActorFlagChanged,
		ActorID:   adminID,
		Target:    actorID,
		Success:   true,
		Message:   fmt.Sprintf("is_human=%v", value),
	})
	logging.Store("Actor %s is_human set to %v by %s", actorID, value, adminID)
	return target, nil
}

// GetActor fetches a principal by id.
func (s *ContentStore) GetActor(id string) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getActor(id)
}

func (s *ContentStore) getActor(id string) (*Actor, error) {
	row := s.db.QueryRow(
		`SELECT id, email, role, is_human, created_at FROM actors WHERE id = ?`, id)
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "actor %s not found", id)
	}
	return a, err
}

// GetActorByEmail fetches a principal by email.
func (s *ContentStore) GetActorByEmail(email string) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRow(
		`SELECT id, email, role, is_human, created_at FROM actors WHERE email = ?`, email)
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Validation, "actor with email %s not found", email)
	}
	return a, err
}

// ListActors returns all principals ordered by creation time.
func (s *ContentStore) ListActors() ([]*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, email, role, is_human, created_at FROM actors ORDER BY created_at`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var actors []*Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, mapErr(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (*Actor, error) {
	var a Actor
	var isHuman int
	var createdAt string
	if err := row.Scan(&a.ID, &a.Email, &a.Role, &isHuman, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, mapErr(err)
	}
	a.IsHuman = isHuman != 0
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
