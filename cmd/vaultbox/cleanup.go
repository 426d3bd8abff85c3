package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/vaultbox/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge soft-deleted files",
	Long: `Permanently remove soft-deleted files from storage.

This command processes every file that has been soft-deleted but not yet
purged, whether or not a purge job exists for it. For each file it:
  1. Deletes the object from storage
  2. Marks the metadata entry as purged

The worker runs the same sweep periodically; use this to converge on demand.`,
	RunE: runCleanup,
}

var cleanupLimit int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupLimit, "limit", 100, "number of files to load per batch")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	slog.Info("starting cleanup", "limit", cleanupLimit)

	purged, err := c.service.Sweep(ctx, cleanupLimit)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	slog.Info("cleanup complete", "files_purged", purged)
	return nil
}
