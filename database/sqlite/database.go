package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/vaultbox"

	_ "modernc.org/sqlite" // SQLite driver
)

// database provides SQLite database operations.
type database struct {
	db *sql.DB
}

// Connect opens a SQLite database.
//
// The pool is limited to one connection: SQLite serializes writers anyway, and
// ":memory:" databases exist per connection.
func Connect(ctx context.Context, dsn string) (*database, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &database{db: db}, nil
}

// Ping verifies the database connection is alive.
func (d *database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations.
func (d *database) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := migrateUp(d.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db)
}

// GetRepo returns the MetaDataRepo for database operations.
func (d *database) GetRepo() vaultbox.MetaDataRepo {
	return &repo{db: d.db}
}

// Close closes the database connection.
func (d *database) Close() error {
	return d.db.Close()
}
