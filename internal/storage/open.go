package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend drivers accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a storage backend
type Config struct {
	Driver    string // sqlite (default) or postgres
	Path      string // SQLite file path or ":memory:"
	URL       string // Postgres connection string
	Dimension int    // Postgres vector column size
}

// Open returns the configured backend with its schema in place
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: sqlite path is required")
		}
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("storage: create data directory: %w", err)
			}
		}
		s, err := NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres, "postgresql", "pgvector":
		if cfg.URL == "" {
			return nil, fmt.Errorf("storage: postgres url is required")
		}
		s, err := NewPostgresStorage(ctx, cfg.URL, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
