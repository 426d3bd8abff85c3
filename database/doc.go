// Package database provides a unified interface for connecting to metadata backends.
//
// The package supports PostgreSQL and SQLite. Both keep file metadata in a single
// file_meta table whose schema is managed by embedded SQL migrations.
//
// # Supported Backends
//
//   - PostgreSQL: Production backend using a pgx connection pool
//   - SQLite: Lightweight backend suitable for development and single-node deployments
//
// # Usage
//
//	cfg := database.Config{
//	    Type: "sqlite",
//	    DSN:  "vaultbox.db",
//	}
//
//	db, err := database.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	repo := db.GetRepo()
//
// Open connects, applies migrations and validates the live schema. Use Connect
// when the steps need to run separately, as the migrate command does.
//
// # Subpackages
//
//   - database/postgres: PostgreSQL implementation using pgx
//   - database/sqlite: SQLite implementation using modernc.org/sqlite
package database
