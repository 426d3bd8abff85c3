package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sagarc03/vaultbox/metrics"
)

// Client enqueues jobs. It satisfies vaultbox.Scheduler.
type Client struct {
	queue Queue
}

func NewClient(q Queue) *Client {
	return &Client{queue: q}
}

// Enqueue encodes args and hands the job to the queue.
func (c *Client) Enqueue(ctx context.Context, name string, args any) error {
	job, err := NewJob(name, args)
	if err != nil {
		return err
	}

	if err := c.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}

	metrics.JobsEnqueuedTotal.WithLabelValues(name).Inc()
	slog.Debug("job enqueued", "job", name, "job_id", job.ID)
	return nil
}
