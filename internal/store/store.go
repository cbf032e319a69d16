// Package store implements the content quality database on SQLite.
//
// The store exclusively owns blogs, versions, approvals, review actions and
// escalations; the evaluation pipeline and rewrite orchestrator own their
// run/score/cycle rows but persist them through this package so the
// write-once triggers cover everything.
//
// Immutability is enforced twice: in code (this package never issues a
// forbidden UPDATE) and in the schema (triggers abort any such statement,
// whoever issues it).
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"redline/internal/fault"
	"redline/internal/logging"
)

// ContentStore is the single source of truth for all persisted state.
type ContentStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewContentStore opens (or creates) the SQLite database at the given path.
// Use ":memory:" for tests.
func NewContentStore(path string) (*ContentStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewContentStore")
	defer timer.Stop()

	logging.Store("Opening content store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fault.Wrap(fault.Unavailable, err, "failed to open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &ContentStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.Unavailable, err, "failed to initialize schema")
	}
	logging.StoreDebug("Schema initialized")
	return s, nil
}

// Close closes the underlying database.
func (s *ContentStore) Close() error {
	logging.Store("Closing content store")
	return s.db.Close()
}

// DB exposes the raw handle for stats and tests.
func (s *ContentStore) DB() *sql.DB { return s.db }

// Stats returns row counts per table.
func (s *ContentStore) Stats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := []string{
		"actors", "blogs", "blog_versions", "evaluation_runs",
		"ai_detector_scores", "aeo_scores", "rewrite_cycles",
		"approval_states", "approval_attempts", "human_review_actions",
		"review_states", "escalations",
	}
	stats := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, mapErr(err)
		}
		stats[table] = count
	}
	return stats, nil
}

// now returns the current time truncated for stable round-tripping.
func now() time.Time {
	return time.Now().UTC()
}

// newID returns a fresh row id.
func newID() string {
	return uuid.NewString()
}

// fmtTime serializes a timestamp. RFC3339Nano sorts lexically, so SQL
// ORDER BY on these columns matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserializes a stored timestamp.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// mapErr translates driver errors into fault kinds.
// Unique/check constraint races surface as conflict; a trigger abort means
// code attempted to mutate a write-once row, which is an internal invariant
// violation; anything else is unavailable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		if serr.Code == sqlite3.ErrConstraint {
			switch serr.ExtendedCode {
			case sqlite3.ErrConstraintTrigger:
				return fault.Wrap(fault.Internal, err, "write-once violation at storage layer")
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return fault.Wrap(fault.Conflict, err, "constraint conflict")
			default:
				return fault.Wrap(fault.Validation, err, "constraint check failed")
			}
		}
		// Trigger RAISE(ABORT) without extended code still carries the message.
		if strings.Contains(err.Error(), "immutable:") {
			return fault.Wrap(fault.Internal, err, "write-once violation at storage layer")
		}
	}
	return fault.Wrap(fault.Unavailable, err, "storage error")
}
