package main

import (
	"context"
	"testing"
	"time"

	"content-distributor/infrastructure/configuration"
	"content-distributor/infrastructure/scheduler"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var cfg configuration.Config
	cfg.RedisClient.Host = "localhost"
	configuration.ApplyDefaults(&cfg)

	q := InitiateQueue(cfg.Scheduler, client)
	require.IsType(t, &scheduler.RedisQueue{}, q)
	require.NoError(t, q.Push(context.Background(), scheduler.LaneDefault, &scheduler.Task{ID: "t1", Class: "publish", RunAt: time.Now()}))
	assert.True(t, mr.Exists("distributor:tasks:default"))

	assert.IsType(t, &scheduler.MemoryQueue{}, InitiateQueue(cfg.Scheduler, nil))
	assert.IsType(t, &scheduler.MemoryQueue{}, InitiateQueue(configuration.Scheduler{Queue: "memory"}, client))
}

func TestPlatformTimeouts(t *testing.T) {
	var cfg configuration.Config
	configuration.ApplyDefaults(&cfg)

	got := platformTimeouts(cfg.Platforms)
	assert.Len(t, got, 9)
	assert.Equal(t, 6*time.Minute, got["instagram"])
	assert.Equal(t, time.Minute, got["facebook"])

	got = platformTimeouts(map[string]configuration.Platform{"X": {Timeout: 3 * time.Minute}, "reddit": {}})
	assert.Equal(t, map[string]time.Duration{"twitter": 3 * time.Minute}, got)
}
