package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the queue keys.
const DefaultRedisPrefix = "vaultbox:jobs"

// promoteScript moves due members of the delayed set onto the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a reliable list queue.
//
// Jobs are pushed to <prefix>:ready and moved atomically to <prefix>:processing when
// dequeued, so a worker that dies mid-job leaves it recoverable. Retries wait in the
// <prefix>:delayed sorted set, scored by due time. Buried jobs go to <prefix>:dead.
type RedisQueue struct {
	rdb        redis.UniversalClient
	ready      string
	processing string
	delayed    string
	dead       string
}

// NewRedisQueue builds a queue on rdb. An empty prefix uses DefaultRedisPrefix.
func NewRedisQueue(rdb redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisQueue{
		rdb:        rdb,
		ready:      prefix + ":ready",
		processing: prefix + ":processing",
		delayed:    prefix + ":delayed",
		dead:       prefix + ":dead",
	}
}

// DialRedis connects to the broker at addr and checks it answers.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("dial redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}

	if err := q.rdb.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Dequeue promotes due retries, then blocks on the ready list. Redis counts the
// blocking timeout in whole seconds.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (Job, error) {
	if err := q.promote(ctx); err != nil {
		return Job{}, err
	}

	var (
		payload string
		err     error
	)
	if wait > 0 {
		payload, err = q.rdb.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", wait).Result()
	} else {
		payload, err = q.rdb.LMove(ctx, q.ready, q.processing, "RIGHT", "LEFT").Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrNoJob
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Job{}, ctxErr
		}
		return Job{}, fmt.Errorf("redis dequeue: %w", err)
	}

	job, err := decode(payload)
	if err != nil {
		// A payload we cannot read would block the list forever; park it.
		if pushErr := q.rdb.LPush(ctx, q.dead, payload).Err(); pushErr == nil {
			q.rdb.LRem(ctx, q.processing, 1, payload)
		}
		return Job{}, err
	}

	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("redis ack %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, job.raw)
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: due, Member: payload})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis retry %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Bury(ctx context.Context, job Job) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, job.raw)
		pipe.LPush(ctx, q.dead, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis bury %s: %w", job.ID, err)
	}
	return nil
}

// RecoverInflight moves every job left in the processing list back to ready and
// returns how many were moved. Call it only when no other worker shares the prefix.
func (q *RedisQueue) RecoverInflight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.ready, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("redis recover inflight: %w", err)
		}
		n++
	}
}

// Dead returns the buried jobs, newest first.
func (q *RedisQueue) Dead(ctx context.Context) ([]Job, error) {
	payloads, err := q.rdb.LRange(ctx, q.dead, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dead jobs: %w", err)
	}

	out := make([]Job, 0, len(payloads))
	for _, p := range payloads {
		job, err := decode(p)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.rdb, []string{q.delayed, q.ready}, now, 100).Err(); err != nil && !errors.Is(err, redis.Nil) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("redis promote delayed: %w", err)
	}
	return nil
}

func encode(job Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return string(data), nil
}

func decode(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	job.raw = payload
	return job, nil
}
