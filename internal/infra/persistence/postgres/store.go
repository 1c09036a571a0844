// Package postgres persists visitor preferences in PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"raceview/pkg/domain"
)

var _ domain.PreferenceStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/raceview?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one row per visitor in the preferences table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// pings the server and ensures the preferences table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS preferences (
		visitor_id TEXT PRIMARY KEY,
		theme TEXT NOT NULL,
		language TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure preferences table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, visitorID string) (domain.Preferences, bool, error) {
	if visitorID == "" {
		return domain.Preferences{}, false, domain.ErrInvalidVisitor
	}
	var theme, lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT theme, language FROM preferences WHERE visitor_id = $1`, visitorID).Scan(&theme, &lang)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO preferences(visitor_id, theme, language, updated_at) VALUES($1,$2,$3,$4)
		ON CONFLICT(visitor_id) DO UPDATE SET theme=EXCLUDED.theme, language=EXCLUDED.language, updated_at=EXCLUDED.updated_at`,
		visitorID, string(prefs.Theme), string(prefs.Language), s.now()); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
