package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

type delayedJob struct {
	job Job
	due time.Time
}

// MemoryQueue is an in-process Queue. Jobs do not survive a restart; rows left
// pending by a lost job are picked up by the periodic sweep.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []Job
	delayed  []delayedJob
	inflight map[string]Job
	dead     []Job

	// wake is closed and replaced whenever a job becomes ready, waking every waiter.
	wake chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]Job),
		wake:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.ID == "" {
		return errors.New("enqueue: job has no id")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready = append(q.ready, job)
	q.signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (Job, error) {
	deadline := time.Now().Add(wait)

	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		q.mu.Lock()
		now := time.Now()
		q.promote(now)

		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			q.inflight[job.ID] = job
			q.mu.Unlock()
			return job, nil
		}

		sleep := deadline.Sub(now)
		if sleep <= 0 {
			q.mu.Unlock()
			return Job{}, ErrNoJob
		}
		for _, d := range q.delayed {
			if until := d.due.Sub(now); until < sleep {
				sleep = until
			}
		}
		wake := q.wake
		q.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Job{}, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, job.ID)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, job.ID)
	q.delayed = append(q.delayed, delayedJob{job: job, due: time.Now().Add(delay)})
	// Waiters recompute their sleep against the new due time.
	q.signal()
	return nil
}

func (q *MemoryQueue) Bury(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, job.ID)
	q.dead = append(q.dead, job)
	return nil
}

// Dead returns a copy of the buried jobs.
func (q *MemoryQueue) Dead() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]Job(nil), q.dead...)
}

// Pending reports how many jobs are ready, delayed or in flight.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ready) + len(q.delayed) + len(q.inflight)
}

// promote moves due delayed jobs to the ready list. Callers hold mu.
func (q *MemoryQueue) promote(now time.Time) {
	kept := q.delayed[:0]
	for _, d := range q.delayed {
		if d.due.After(now) {
			kept = append(kept, d)
			continue
		}
		q.ready = append(q.ready, d.job)
	}
	q.delayed = kept
}

// signal wakes all waiting Dequeue calls. Callers hold mu.
func (q *MemoryQueue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}
