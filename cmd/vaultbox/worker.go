package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/vaultbox/config"
	"github.com/sagarc03/vaultbox/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the purge worker against the redis queue",
	Long: `Consume purge jobs from the redis queue and periodically sweep
soft-deleted files whose purge job was lost.

Examples:
  # Run next to one or more 'vaultbox serve' processes
  vaultbox worker --queue-type redis --queue-addr localhost:6379

  # Requeue jobs left in flight by a crashed worker (single worker only)
  vaultbox worker --recover`,
	RunE: runWorker,
}

var (
	workerRecover bool
	workerNoSweep bool
)

func init() {
	workerCmd.Flags().BoolVar(&workerRecover, "recover", false, "requeue in-flight jobs at startup; only safe when no other worker is running")
	workerCmd.Flags().BoolVar(&workerNoSweep, "no-sweep", false, "do not run the periodic sweeper")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Queue.Type != "redis" {
		return errors.New("worker needs a shared queue: set queue.type to redis")
	}

	ctx := cmd.Context()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	if workerRecover {
		rq, ok := c.queue.(*jobs.RedisQueue)
		if !ok {
			return fmt.Errorf("recover: unexpected queue %T", c.queue)
		}
		n, err := rq.RecoverInflight(ctx)
		if err != nil {
			return err
		}
		slog.Info("recovered in-flight jobs", "count", n)
	}

	worker := c.newWorker(cfg.Queue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if !workerNoSweep {
		g.Go(func() error {
			jobs.RunSweeper(gctx, c.service, cfg.Queue.SweepInterval, cfg.Queue.SweepLimit)
			return nil
		})
	}

	return g.Wait()
}
