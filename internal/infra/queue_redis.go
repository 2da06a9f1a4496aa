package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJobQueue is a named list: LPUSH on submit, BRPOP on take, which
// gives FIFO order and removes each id atomically.
type RedisJobQueue struct {
	client *redis.Client
	name   string
	block  time.Duration
}

func NewRedisJobQueue(client *redis.Client, name string, block time.Duration) *RedisJobQueue {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisJobQueue{client: client, name: name, block: block}
}

func (q *RedisJobQueue) Push(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, q.name, id).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisJobQueue) Pop(ctx context.Context) (string, error) {
	for {
		res, err := q.client.BRPop(ctx, q.block, q.name).Result()
		if err == nil {
			return res[1], nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("brpop %s: %w", q.name, err)
		}
	}
}
