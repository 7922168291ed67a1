package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a single Redis list:
//
//	<prefix>tasks
//
// Values are gob-encoded Task structs. Enqueue pushes on the left and
// Dequeue pops from the right, giving FIFO order.
type RedisQueue struct {
	client *redis.Client
	key    string

	// blockFor bounds each BRPOP so cancellation is noticed promptly.
	blockFor time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "credflow:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "credflow:"
	}
	return &RedisQueue{
		client:   client,
		key:      prefix + "tasks",
		blockFor: time.Second,
	}
}

var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// BRPop returns [key, value].
		res, err := q.client.BRPop(ctx, q.blockFor, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("redis queue: unexpected BRPOP reply %q", res)
		}
		return DecodeTask([]byte(res[1]))
	}
}

// Len returns the approximate number of tasks queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		slog.Default().Warn("redis_queue_len_failed", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}
