package core

import (
	"context"
	"errors"
	"fmt"

	"raceview/internal/infra/persistence/memory"
	"raceview/internal/infra/persistence/postgres"
	"raceview/internal/infra/persistence/sqlite"
	"raceview/pkg/domain"
)

// StorageDriver identifies a preference store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// PreferenceStoreConfig selects and configures a preference store.
type PreferenceStoreConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// OpenPreferenceStore returns the store named by cfg.Driver. An empty driver
// means sqlite.
func OpenPreferenceStore(ctx context.Context, cfg PreferenceStoreConfig) (domain.PreferenceStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("storage driver %s: %w", driver, errors.ErrUnsupported)
	}
}
