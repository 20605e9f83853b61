package cache_test

import (
	"context"
	"testing"
	"time"

	"content-distributor/infrastructure/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewCache(context.Background(), mr.Addr(), "", "", 0)
	require.NoError(t, err)
	assert.NotNil(t, client)
	_ = client.Close()
}

func TestNewCacheUnreachable(t *testing.T) {
	_, err := cache.NewCache(context.Background(), "127.0.0.1:1", "", "", 0)
	assert.Error(t, err)
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	mr, client := newRedis(t)
	locker := cache.NewRedisLocker(client, "test:lock")

	unlock, err := locker.Lock(context.Background(), "account:7")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:account:7"))

	unlock()
	assert.False(t, mr.Exists("test:lock:account:7"))
}

func TestRedisLocker_TimesOutWhileHeld(t *testing.T) {
	_, client := newRedis(t)
	locker := cache.NewRedisLocker(client, "test:lock").WithTimings(time.Minute, 50*time.Millisecond, 10*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "account:7")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "account:7")
	assert.ErrorIs(t, err, cache.ErrLockTimeout)
}

func TestRedisLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, client := newRedis(t)
	locker := cache.NewRedisLocker(client, "test:lock")

	unlock, err := locker.Lock(context.Background(), "account:9")
	require.NoError(t, err)

	// Lease expired and another holder took over.
	require.NoError(t, mr.Set("test:lock:account:9", "someone-else"))
	unlock()

	got, err := mr.Get("test:lock:account:9")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := newRedis(t)
	locker := cache.NewRedisLocker(client, "test:lock").WithTimings(time.Minute, 2*time.Second, 10*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "account:1")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	unlock2, err := locker.Lock(context.Background(), "account:1")
	require.NoError(t, err)
	unlock2()
}
