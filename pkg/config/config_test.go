package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Second, cfg.Scheduling.LockTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Scheduling.CacheTTL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 300, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SCHEDULE_LOCK_TIMEOUT", "750ms")
	t.Setenv("SCHEDULE_CACHE_TTL", "not-a-duration")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("JWT_ISSUER", "identity")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.Scheduling.LockTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Scheduling.CacheTTL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "identity", cfg.JWT.Issuer)
}
