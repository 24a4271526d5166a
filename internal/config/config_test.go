package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Neutralize ambient environment
	for _, key := range []string{"SERVER_ADDR", "APP_ENV", "PUBSUB_TYPE", "EVENT_RATE_LIMIT", "INTERNAL_RATE_RPM"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "memory", cfg.PubSubType)
	assert.Equal(t, 20, cfg.EventRateLimit)
	assert.Equal(t, 600, cfg.InternalRateRPM)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("APP_ENV", "production")
	t.Setenv("EVENT_RATE_LIMIT", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ServerAddr)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 50, cfg.EventRateLimit)
}

func TestLoad_BadIntFallsBackToDefault(t *testing.T) {
	t.Setenv("EVENT_RATE_LIMIT", "plenty")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.EventRateLimit)
}

func TestLoad_RedisBackendRequiresURL(t *testing.T) {
	t.Setenv("PUBSUB_TYPE", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.PubSubType)
}

func TestLoad_NatsBackendRequiresURL(t *testing.T) {
	t.Setenv("PUBSUB_TYPE", "nats")
	t.Setenv("NATS_URL", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("NATS_URL", "nats://localhost:4222")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.PubSubType)
}

func TestLoad_RejectsUnknownPubSubType(t *testing.T) {
	t.Setenv("PUBSUB_TYPE", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}
