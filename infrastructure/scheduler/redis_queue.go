package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// popDue removes and returns the earliest member scored at or below ARGV[1].
var popDue = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #items == 0 then
	return false
end
redis.call("ZREM", KEYS[1], items[1])
return items[1]`)

// RedisQueue keeps one sorted set per lane scored by RunAt in unix milliseconds,
// so queued work survives restarts and is shared by every replica.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "distributor:tasks"
	}
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) key(lane Lane) string { return fmt.Sprintf("%s:%s", q.prefix, lane) }

func (q *RedisQueue) Push(ctx context.Context, lane Lane, t *Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return q.client.ZAdd(ctx, q.key(lane), redis.Z{
		Score:  float64(t.RunAt.UnixMilli()),
		Member: string(body),
	}).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, lane Lane, now time.Time) (*Task, error) {
	raw, err := popDue.Run(ctx, q.client, []string{q.key(lane)}, strconv.FormatInt(now.UnixMilli(), 10)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.key(lane), err)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode queued task: %w", err)
	}
	return &t, nil
}

func (q *RedisQueue) Len(ctx context.Context, lane Lane) (int, error) {
	n, err := q.client.ZCard(ctx, q.key(lane)).Result()
	return int(n), err
}
