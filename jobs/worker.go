package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/vaultbox/metrics"
)

const (
	DefaultConcurrency = 4
	DefaultMaxAttempts = 10
	DefaultMinBackoff  = time.Second
	DefaultMaxBackoff  = 5 * time.Minute
	DefaultPollWait    = 2 * time.Second
)

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// WorkerConfig holds the tuning knobs of a Worker. Zero values take the defaults.
type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	PollWait    time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.MinBackoff)
	}
	if c.PollWait <= 0 {
		c.PollWait = DefaultPollWait
	}
	return c
}

// Worker consumes a Queue with a fixed number of goroutines.
type Worker struct {
	queue Queue
	cfg   WorkerConfig

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(q Queue, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    q,
		cfg:      cfg.withDefaults(),
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for jobs named name, replacing any previous handler.
func (w *Worker) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[name] = h
}

// Run consumes jobs until ctx is cancelled. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started", "concurrency", w.cfg.Concurrency, "max_attempts", w.cfg.MaxAttempts)

	g, ctx := errgroup.WithContext(ctx)
	for i := range w.cfg.Concurrency {
		g.Go(func() error {
			w.consume(ctx, i)
			return nil
		})
	}

	err := g.Wait()
	slog.Info("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, id int) {
	// Backs off on queue errors so a broker outage does not spin.
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}

	for {
		job, err := w.queue.Dequeue(ctx, w.cfg.PollWait)
		switch {
		case err == nil:
			b.Reset()
			w.process(ctx, job)
		case errors.Is(err, ErrNoJob):
			b.Reset()
		case ctx.Err() != nil:
			return
		default:
			d := b.Duration()
			slog.Warn("dequeue failed", "consumer", id, "err", err, "retry_in", d)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// process runs the handler and settles the job. Settling uses a context that
// outlives cancellation so a finished job is not delivered again.
func (w *Worker) process(ctx context.Context, job Job) {
	settle := context.WithoutCancel(ctx)
	log := slog.With("job", job.Name, "job_id", job.ID, "attempt", job.Attempt+1)

	w.mu.RLock()
	h, ok := w.handlers[job.Name]
	w.mu.RUnlock()

	if !ok {
		log.Error("no handler for job, burying")
		w.bury(settle, job, log)
		return
	}

	start := time.Now()
	err := run(ctx, h, job)
	if err == nil {
		if ackErr := w.queue.Ack(settle, job); ackErr != nil {
			log.Error("ack failed", "err", ackErr)
		}
		metrics.JobsProcessedTotal.WithLabelValues(job.Name, metrics.ResultOK).Inc()
		log.Debug("job done", "duration", time.Since(start))
		return
	}

	job.Attempt++
	if job.Attempt >= w.cfg.MaxAttempts {
		log.Error("job failed, out of attempts", "err", err)
		w.bury(settle, job, log)
		return
	}

	delay := w.delay(job.Attempt)
	if retryErr := w.queue.Retry(settle, job, delay); retryErr != nil {
		log.Error("retry failed", "err", retryErr)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Name, metrics.ResultRetry).Inc()
	log.Warn("job failed, retrying", "err", err, "retry_in", delay)
}

func (w *Worker) bury(ctx context.Context, job Job, log *slog.Logger) {
	if err := w.queue.Bury(ctx, job); err != nil {
		log.Error("bury failed", "err", err)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Name, metrics.ResultBuried).Inc()
}

// delay returns the wait before the given retry, counting from 1.
func (w *Worker) delay(attempt int) time.Duration {
	b := &backoff.Backoff{Min: w.cfg.MinBackoff, Max: w.cfg.MaxBackoff, Factor: 2, Jitter: true}
	return b.ForAttempt(float64(attempt - 1))
}

func run(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return h(ctx, job)
}
