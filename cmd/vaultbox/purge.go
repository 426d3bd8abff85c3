package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/config"
	"github.com/sagarc03/vaultbox/jobs"
)

var purgeCmd = &cobra.Command{
	Use:   "purge [flags] <file-id> [file-id] ...",
	Short: "Purge soft-deleted files by id",
	Long: `Purge the objects of soft-deleted files and mark them as purged.

Files that do not exist, are not deleted, or are already purged are left
alone.

Examples:
  # Purge one file now
  vaultbox purge 3f0c9c2e-6d1b-4c39-9f55-0a4a4e7d2b10

  # Hand the purge to the worker instead
  vaultbox purge --enqueue --queue-type redis --queue-addr localhost:6379 <file-id>`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPurge,
}

var purgeEnqueue bool

func init() {
	purgeCmd.Flags().BoolVar(&purgeEnqueue, "enqueue", false, "enqueue purge jobs instead of purging in this process")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, parseErr := uuid.Parse(arg)
		if parseErr != nil {
			return fmt.Errorf("invalid file id %q: %w", arg, parseErr)
		}
		ids = append(ids, id)
	}

	if purgeEnqueue && cfg.Queue.Type != "redis" {
		return errors.New("--enqueue needs a shared queue: set queue.type to redis")
	}

	ctx := cmd.Context()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	client := jobs.NewClient(c.queue)

	for _, id := range ids {
		if purgeEnqueue {
			if err := client.Enqueue(ctx, vaultbox.PurgeJobName, vaultbox.PurgeArgs{FileID: id}); err != nil {
				return fmt.Errorf("enqueue purge %s: %w", id, err)
			}
			slog.Info("purge enqueued", "file_id", id)
			continue
		}

		if err := c.service.Reconcile(ctx, id); err != nil {
			return err
		}
	}

	slog.Info("purge complete", "files", len(ids))
	return nil
}
