// Package config provides configuration loading and validation for vaultbox.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (VAULTBOX_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with VAULTBOX_ prefix:
//   - server.port → VAULTBOX_SERVER_PORT
//   - database.type → VAULTBOX_DATABASE_TYPE
//   - queue.addr → VAULTBOX_QUEUE_ADDR
//   - storage.s3.secret_access_key → VAULTBOX_STORAGE_S3_SECRET_ACCESS_KEY
//
// # Configuration Structure
//
// The Config struct contains:
//   - Server: port and shutdown timeout
//   - Service: bucket, chunk size, size limit, serve_deleted and cleanup timeout
//   - Database: type (sqlite, postgres) and DSN
//   - Storage: filesystem path or S3 endpoint and credentials
//   - Queue: memory or redis broker, worker pool and sweeper settings
//   - CORS: cross-origin resource sharing settings
//   - Log: level and handler (dev or prod)
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Port must be 1-65535
//   - Storage type must be filesystem or s3; filesystem needs a path
//   - Queue type must be memory or redis; redis needs an addr
//   - max_backoff must not be below min_backoff
//   - Log level must be debug, info, warn, or error
package config
