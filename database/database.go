package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/database/postgres"
	"github.com/sagarc03/vaultbox/database/sqlite"
)

// Database provides a unified interface for metadata backends.
type Database interface {
	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Migrate applies every pending schema migration.
	Migrate(ctx context.Context) error

	// Validate checks that the database schema matches the expected structure.
	Validate(ctx context.Context) error

	// GetRepo returns the MetaDataRepo for database operations.
	GetRepo() vaultbox.MetaDataRepo

	// Close closes the database connection.
	Close() error
}

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
}

// Connect opens a connection to the configured backend. It does not migrate;
// callers run Migrate and Validate before handing out the repo.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Connect(ctx, cfg.DSN)
	case "postgres":
		return postgres.Connect(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Open connects, migrates and validates in one step.
func Open(ctx context.Context, cfg Config) (Database, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Type, err)
	}

	if err = db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Type, err)
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("validate %s schema: %w", cfg.Type, err)
	}

	return db, nil
}
