package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis backs the queue with a Redis list for ordering and a hash for
// by-id lookup, so Peek works without draining.
type Redis struct {
	rdb     *redis.Client
	listKey string
	hashKey string
}

func NewRedis(rdb *redis.Client, name string) *Redis {
	return &Redis{
		rdb:     rdb,
		listKey: "keyforge:queue:" + name + ":order",
		hashKey: "keyforge:queue:" + name + ":messages",
	}
}

func (q *Redis) Enqueue(ctx context.Context, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.hashKey, msg.ID, raw)
	pipe.RPush(ctx, q.listKey, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context) (*Message, error) {
	for {
		id, err := q.rdb.LPop(ctx, q.listKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		raw, err := q.rdb.HGet(ctx, q.hashKey, id).Result()
		if errors.Is(err, redis.Nil) {
			// Orphaned id; skip it
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		q.rdb.HDel(ctx, q.hashKey, id)

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message %s: %w", id, err)
		}
		return &msg, nil
	}
}

func (q *Redis) Peek(ctx context.Context, id string) (*Message, error) {
	raw, err := q.rdb.HGet(ctx, q.hashKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message %s: %w", id, err)
	}
	return &msg, nil
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
