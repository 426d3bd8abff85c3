package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sagarc03/vaultbox/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "vaultbox",
	Short:   "File storage service with metadata and deferred purge",
	Long: `vaultbox stores uploaded files in an S3-compatible bucket or a local
directory and keeps their metadata in SQLite or PostgreSQL. Deleted files
are purged in the background by a job worker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg.Log)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	flags.String("db-type", "", "database type: sqlite, postgres (default: sqlite, env: VAULTBOX_DATABASE_TYPE)")
	flags.String("db-dsn", "", "database connection string (default: vaultbox.db, env: VAULTBOX_DATABASE_DSN)")
	flags.String("storage-type", "", "object store: filesystem, s3 (default: filesystem, env: VAULTBOX_STORAGE_TYPE)")
	flags.String("storage-path", "", "filesystem store directory (default: ./data, env: VAULTBOX_STORAGE_PATH)")
	flags.String("bucket", "", "bucket holding file content (default: test_bucket, env: VAULTBOX_SERVICE_BUCKET)")
	flags.String("queue-type", "", "job queue: memory, redis (default: memory, env: VAULTBOX_QUEUE_TYPE)")
	flags.String("queue-addr", "", "redis address for the job queue (env: VAULTBOX_QUEUE_ADDR)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: info, env: VAULTBOX_LOG_LEVEL)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
