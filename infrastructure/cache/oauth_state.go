package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound means the OAuth state is unknown, expired or already used.
var ErrStateNotFound = errors.New("cache: oauth state not found")

// RedisStateStore keeps the OAuth state of a pending account reconnect. A state can be taken once.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "distributor:oauth-state"
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

func (s *RedisStateStore) Save(ctx context.Context, state string, accountID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(state), accountID, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (int64, error) {
	v, err := s.client.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrStateNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("take oauth state: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("oauth state %q holds %q: %w", state, v, err)
	}
	return id, nil
}

func (s *RedisStateStore) key(state string) string { return s.prefix + ":" + state }
