package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration(t *testing.T) {
	t.Run("configuration_struct_exists", func(t *testing.T) {
		require.NotNil(t, &C, "Configuration should not be nil")
		require.NotZero(t, C.App.Port, "App port should always resolve")
	})

	t.Run("defaults_are_applied", func(t *testing.T) {
		require.NotEmpty(t, C.Distribution.Stagger)
		require.NotZero(t, C.Distribution.MetricsCooldown)
		require.NotEmpty(t, C.Scheduler.Queue)
	})
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, 15*time.Second, cfg.Distribution.Stagger["facebook"])
	assert.Equal(t, 60*time.Second, cfg.Distribution.Stagger["youtube"])
	assert.Equal(t, time.Hour, cfg.Distribution.MetricsCooldown)
	assert.Equal(t, 5*time.Minute, cfg.Distribution.TokenRefreshMargin)
	assert.Equal(t, 3, cfg.Distribution.PublishMaxAttempts)
	assert.Len(t, cfg.Distribution.PublishBackoff, 2)
	assert.Equal(t, "memory", cfg.Scheduler.Queue)
	assert.Equal(t, "distributor", cfg.Scheduler.KeyPrefix)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Len(t, cfg.Platforms, 9)
}

func TestApplyDefaultsPrefersRedisQueue(t *testing.T) {
	cfg := Config{RedisClient: RedisClient{Host: "localhost", Port: "6379"}}
	ApplyDefaults(&cfg)
	assert.Equal(t, "redis", cfg.Scheduler.Queue)

	cfg = Config{RedisClient: RedisClient{Host: "localhost"}, Scheduler: Scheduler{Queue: "memory"}}
	ApplyDefaults(&cfg)
	assert.Equal(t, "memory", cfg.Scheduler.Queue)
}

func TestDefaultPlatformTimeoutsCoverPolling(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	for name, p := range cfg.Platforms {
		assert.GreaterOrEqual(t, p.Timeout, time.Minute, name)
		assert.LessOrEqual(t, p.Timeout, 10*time.Minute, name)
		budget := time.Duration(p.PollAttempts) * p.PollInterval
		assert.Less(t, budget, p.Timeout, "%s polls for %s within a %s attempt", name, budget, p.Timeout)
	}
	assert.Equal(t, 6*time.Minute, cfg.Platforms["instagram"].Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Platforms["youtube"].Timeout)
}

func TestApplyDefaultsKeepsConfiguredPlatform(t *testing.T) {
	cfg := Config{Platforms: map[string]Platform{
		"tiktok": {BaseURL: "http://tiktok.local", Timeout: 8 * time.Minute},
	}}
	ApplyDefaults(&cfg)

	tiktok := cfg.Platforms["tiktok"]
	assert.Equal(t, "http://tiktok.local", tiktok.BaseURL)
	assert.Equal(t, 8*time.Minute, tiktok.Timeout)
	assert.Equal(t, 30, tiktok.PollAttempts)
	assert.Equal(t, 10*time.Second, tiktok.PollInterval)
}

func TestApplyDefaultsKeepsConfiguredValues(t *testing.T) {
	cfg := Config{Distribution: Distribution{
		Stagger:         map[string]time.Duration{"facebook": time.Second},
		MetricsCooldown: 2 * time.Hour,
	}}
	ApplyDefaults(&cfg)

	assert.Equal(t, map[string]time.Duration{"facebook": time.Second}, cfg.Distribution.Stagger)
	assert.Equal(t, 2*time.Hour, cfg.Distribution.MetricsCooldown)
}

func TestDefaultStaggerIsDistinctPerPlatform(t *testing.T) {
	seen := map[time.Duration]string{}
	for platform, d := range DefaultStagger() {
		other, dup := seen[d]
		assert.False(t, dup, "%s and %s share a stagger delay", platform, other)
		seen[d] = platform
	}
}

func TestLoadEnvFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DISTRIBUTOR_TEST_KEY=from-file\n# comment\nDISTRIBUTOR_TEST_EXISTING=overridden\n"), 0o600))
	t.Setenv("DISTRIBUTOR_TEST_EXISTING", "kept")

	loaded := LoadEnvFromFile(filepath.Join(dir, "missing.env"), path)

	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "from-file", os.Getenv("DISTRIBUTOR_TEST_KEY"))
	assert.Equal(t, "kept", os.Getenv("DISTRIBUTOR_TEST_EXISTING"))
	_ = os.Unsetenv("DISTRIBUTOR_TEST_KEY")
}
