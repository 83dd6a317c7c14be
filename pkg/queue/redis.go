package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue is a Redis-backed queue shared across the fleet. Immediate
// messages go on a list, delayed messages on a sorted set scored by
// their ready time; consumers are expected to drain both.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a Redis queue client and verifies connectivity
func NewRedisQueue(ctx context.Context, addr string) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisQueue{client: rdb}, nil
}

func listKey(queueName string) string    { return fmt.Sprintf("queue:%s", queueName) }
func delayedKey(queueName string) string { return fmt.Sprintf("queue:%s:delayed", queueName) }

// Put places one message on the named queue
func (q *RedisQueue) Put(ctx context.Context, queueName string, msg interface{}, delay time.Duration) error {
	return q.PutRange(ctx, queueName, []interface{}{msg}, delay)
}

// PutRange places many messages on the named queue in one round trip
func (q *RedisQueue) PutRange(ctx context.Context, queueName string, msgs []interface{}, delay time.Duration) error {
	if len(msgs) == 0 {
		return nil
	}

	payloads := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message for %s: %w", queueName, err)
		}
		payloads = append(payloads, data)
	}

	if delay <= 0 {
		if err := q.client.RPush(ctx, listKey(queueName), payloads...).Err(); err != nil {
			return fmt.Errorf("push to %s: %w", queueName, err)
		}
		return nil
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())
	members := make([]*redis.Z, 0, len(payloads))
	for _, p := range payloads {
		members = append(members, &redis.Z{Score: readyAt, Member: p})
	}
	if err := q.client.ZAdd(ctx, delayedKey(queueName), members...).Err(); err != nil {
		return fmt.Errorf("push delayed to %s: %w", queueName, err)
	}
	return nil
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
