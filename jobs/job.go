// Package jobs runs deferred work with at-least-once delivery.
//
// A Queue stores jobs; a Client enqueues them; a Worker dequeues them, runs the
// handler registered for the job name, and acknowledges, retries with backoff, or
// buries the job once it has used up its attempts.
//
// Two queues are provided: MemoryQueue for single-process deployments and tests, and
// RedisQueue for a worker running apart from the HTTP server.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoJob is returned by Dequeue when no job became ready within the wait.
var ErrNoJob = errors.New("no job available")

// Job is one unit of deferred work.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// raw is the encoded form the job was dequeued as; RedisQueue needs it to
	// remove the job from the processing list.
	raw string
}

// NewJob encodes args and returns a job ready to enqueue.
func NewJob(name string, args any) (Job, error) {
	if name == "" {
		return Job{}, errors.New("new job: name is required")
	}

	data, err := json.Marshal(args)
	if err != nil {
		return Job{}, fmt.Errorf("new job %s: encode args: %w", name, err)
	}

	return Job{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job arguments into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Args, v); err != nil {
		return fmt.Errorf("decode job %s args: %w", j.Name, err)
	}
	return nil
}

// Queue stores jobs between Enqueue and Ack.
//
// A dequeued job stays owned by the caller until it is passed to exactly one of
// Ack, Retry or Bury.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks for up to wait for a ready job. It returns ErrNoJob when none
	// arrived in time.
	Dequeue(ctx context.Context, wait time.Duration) (Job, error)

	// Ack removes a finished job.
	Ack(ctx context.Context, job Job) error

	// Retry makes the job ready again after delay.
	Retry(ctx context.Context, job Job, delay time.Duration) error

	// Bury parks a job that will not be retried.
	Bury(ctx context.Context, job Job) error
}
