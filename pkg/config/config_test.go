package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_UsesSpecDefaultsWhenUnset(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, 10, cfg.RateLimit.Capacity)
	assert.Equal(t, "env", cfg.CredentialBackend)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("AGENTCORE_PORT", "9090")
	t.Setenv("AGENTCORE_CACHE_ENABLED", "false")
	t.Setenv("AGENTCORE_CACHE_TTL", "90s")
	t.Setenv("AGENTCORE_BREAKER_FAILURE_THRESHOLD", "5")
	t.Setenv("AGENTCORE_RATE_LIMIT_REFILL_PER_SECOND", "2.5")
	t.Setenv("AGENTCORE_CREDENTIAL_BACKEND", "file")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2.5, cfg.RateLimit.RefillPerSecond)
	assert.Equal(t, "file", cfg.CredentialBackend)
}

func TestLoad_UnparsableValueFallsBackToDefault(t *testing.T) {
	t.Setenv("AGENTCORE_PORT", "not-a-number")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
}
