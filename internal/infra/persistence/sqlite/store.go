// Package sqlite persists visitor preferences in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"raceview/pkg/domain"
)

var _ domain.PreferenceStore = (*Store)(nil)

// Store keeps one row per visitor in the preferences table.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "raceview.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		visitor_id TEXT PRIMARY KEY,
		theme TEXT NOT NULL,
		language TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}
	return &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Get(ctx context.Context, visitorID string) (domain.Preferences, bool, error) {
	if visitorID == "" {
		return domain.Preferences{}, false, domain.ErrInvalidVisitor
	}
	var theme, lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT theme, language FROM preferences WHERE visitor_id = ?`, visitorID).Scan(&theme, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preferences{}, false, nil
	}
	if err != nil {
		return domain.Preferences{}, false, fmt.Errorf("select preferences: %w", err)
	}
	return domain.Preferences{Theme: domain.Theme(theme), Language: domain.Language(lang)}.Normalize(), true, nil
}

func (s *Store) Put(ctx context.Context, visitorID string, prefs domain.Preferences) error {
	if visitorID == "" {
		return domain.ErrInvalidVisitor
	}
	prefs = prefs.Normalize()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO preferences(visitor_id, theme, language, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(visitor_id) DO UPDATE SET theme=excluded.theme, language=excluded.language, updated_at=excluded.updated_at`,
		visitorID, string(prefs.Theme), string(prefs.Language), s.now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
