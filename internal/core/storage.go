package core

import (
	"context"
	"fmt"
	"os"

	"crosswalk/internal/infra/persistence/memory"
	"crosswalk/internal/infra/persistence/postgres"
	"crosswalk/internal/infra/persistence/sqlite"
	"crosswalk/pkg/domain"
)

// StorageDriver identifies a concrete record cache implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by OpenRecordStore.
const (
	EnvStorageDriver = "CROSSWALK_STORAGE_DRIVER"
	EnvSQLitePath    = "CROSSWALK_SQLITE_PATH"
	EnvPostgresDSN   = "CROSSWALK_POSTGRES_DSN"
)

// StorageConfig selects and locates a record store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the storage variables. The driver defaults to sqlite.
//
//	CROSSWALK_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CROSSWALK_SQLITE_PATH: path to sqlite file (default ./crosswalk.db)
//	CROSSWALK_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv(EnvStorageDriver)),
		SQLitePath:  os.Getenv(EnvSQLitePath),
		PostgresDSN: os.Getenv(EnvPostgresDSN),
	}
}

// OpenRecordStore selects a backend using environment variables.
func OpenRecordStore(ctx context.Context) (domain.RecordStore, error) {
	return OpenRecordStoreWith(ctx, StorageConfigFromEnv())
}

// OpenRecordStoreWith opens the backend described by cfg.
func OpenRecordStoreWith(ctx context.Context, cfg StorageConfig) (domain.RecordStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
