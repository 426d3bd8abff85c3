package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/config"
	"github.com/sagarc03/vaultbox/database"
	"github.com/sagarc03/vaultbox/filesystem"
	"github.com/sagarc03/vaultbox/jobs"
	"github.com/sagarc03/vaultbox/s3"
)

// components holds everything a command needs to run the file service.
type components struct {
	db      database.Database
	store   vaultbox.ObjectStore
	queue   jobs.Queue
	service *vaultbox.FileService

	// pingers are checked by /healthz.
	pingers []pinger
	closers []func() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// pingAll reports the first unreachable dependency.
type pingAll []pinger

func (p pingAll) Ping(ctx context.Context) error {
	for _, d := range p {
		if err := d.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// openComponents connects the database (migrating it), the object store and the job
// queue, then builds the file service on top. On error everything already opened is
// closed.
func openComponents(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	c.db, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.closers = append(c.closers, c.db.Close)
	c.pingers = append(c.pingers, c.db)
	slog.Info("connected to database", "type", cfg.Database.Type)

	if err = c.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	if err = c.openQueue(ctx, cfg.Queue); err != nil {
		return nil, err
	}

	c.service, err = vaultbox.NewFileService(c.db.GetRepo(), c.store, jobs.NewClient(c.queue), cfg.Service.FileService())
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	return c, nil
}

func (c *components) openStore(ctx context.Context, cfg *config.Config) error {
	bucket := cfg.Service.Bucket

	switch cfg.Storage.Type {
	case "filesystem":
		store, err := filesystem.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, store.Close)

		if err = store.EnsureBucket(bucket); err != nil {
			return err
		}
		c.store = store
		slog.Info("using filesystem store", "path", cfg.Storage.Path, "bucket", bucket)

	case "s3":
		store, err := s3.New(cfg.Storage.S3)
		if err != nil {
			return err
		}

		if err = store.EnsureBucket(ctx, bucket, cfg.Storage.S3.Region, cfg.Storage.S3.CreateBucket); err != nil {
			return err
		}
		c.store = store
		slog.Info("using s3 store", "endpoint", cfg.Storage.S3.Endpoint, "bucket", bucket)

	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	return nil
}

func (c *components) openQueue(ctx context.Context, cfg config.QueueConfig) error {
	switch cfg.Type {
	case "memory":
		c.queue = jobs.NewMemoryQueue()

	case "redis":
		rdb, err := jobs.DialRedis(ctx, cfg.Addr)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, rdb.Close)

		q := jobs.NewRedisQueue(rdb, cfg.Prefix)
		c.queue = q
		c.pingers = append(c.pingers, q)
		slog.Info("using redis queue", "addr", cfg.Addr, "prefix", cfg.Prefix)

	default:
		return fmt.Errorf("unsupported queue type: %s", cfg.Type)
	}

	return nil
}

// newWorker returns a worker on the component queue with the purge handler registered.
func (c *components) newWorker(cfg config.QueueConfig) *jobs.Worker {
	w := jobs.NewWorker(c.queue, cfg.Worker())
	w.Handle(vaultbox.PurgeJobName, jobs.PurgeHandler(c.service))
	return w
}

// close releases resources in reverse opening order.
func (c *components) close() {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close components", "err", err)
	}
}
