package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"raceview/internal/infra/persistence/postgres/testutil"
	"raceview/pkg/domain"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "postgres://stub")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}

func TestStoreEnsuresTableAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS preferences") {
		t.Fatalf("expected ddl, got %v", conn.Execs)
	}
	if _, ok, err := store.Get(ctx, "v1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, "v1", domain.Preferences{Theme: domain.ThemeDark, Language: domain.LanguageEnglish}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "v1", domain.Preferences{Theme: domain.ThemeDark, Language: domain.LanguageFrench}); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if err := store.Put(ctx, "v2", domain.DefaultPreferences()); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	if rows := conn.Rows("preferences"); len(rows) != 2 {
		t.Fatalf("expected upsert to keep two rows, got %v", rows)
	}
	got, ok, err := store.Get(ctx, "v1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Theme != domain.ThemeDark || got.Language != domain.LanguageFrench {
		t.Fatalf("unexpected prefs %+v", got)
	}
	if store.DB() == nil {
		t.Fatalf("expected db")
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	if err := store.Put(ctx, "", domain.DefaultPreferences()); !errors.Is(err, domain.ErrInvalidVisitor) {
		t.Fatalf("expected ErrInvalidVisitor, got %v", err)
	}
	conn.FailBegin = true
	if err := store.Put(ctx, "v", domain.DefaultPreferences()); err == nil || !strings.Contains(err.Error(), "begin") {
		t.Fatalf("expected begin failure, got %v", err)
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.Put(ctx, "v", domain.DefaultPreferences()); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false
	conn.FailQuery = true
	if _, _, err := store.Get(ctx, "v"); err == nil {
		t.Fatalf("expected query failure")
	}
}

func TestNewStoreFailures(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}

	db2, conn2 := testutil.NewStubDB()
	conn2.FailExec = true
	restore2 := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db2, nil })
	defer restore2()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ensure") {
		t.Fatalf("expected ddl failure, got %v", err)
	}

	restore3 := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore3()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "open") {
		t.Fatalf("expected open failure, got %v", err)
	}
}
