package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/vaultbox/config"
	vaultboxhttp "github.com/sagarc03/vaultbox/http"
	"github.com/sagarc03/vaultbox/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the vaultbox HTTP server.

With the memory queue the purge worker and the sweeper run inside this
process. With the redis queue they run in 'vaultbox worker'.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP server port (env: VAULTBOX_SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	handler := vaultboxhttp.NewHandler(&vaultboxhttp.HandlerConfig{
		CORS:   cfg.CORS,
		Health: pingAll(c.pingers),
	}, c.service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	// No read or write timeout: uploads and downloads stream for as long as they need.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "queue", cfg.Queue.Type, "storage", cfg.Storage.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if cfg.Queue.Type == "memory" {
		worker := c.newWorker(cfg.Queue)
		g.Go(func() error {
			return worker.Run(gctx)
		})
		g.Go(func() error {
			jobs.RunSweeper(gctx, c.service, cfg.Queue.SweepInterval, cfg.Queue.SweepLimit)
			return nil
		})
	}

	return g.Wait()
}
