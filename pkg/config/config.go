// Package config loads process configuration from the environment under the
// AGENTCORE_ prefix. Grounded on agentoven-agentoven/control-plane/internal/
// config/config.go's envStr/envInt/envBool-with-fallback style; no example
// in the pack actually imports spf13/viper (it appears only as an unused
// transitive entry in dimetron-kagent's go.mod, pulled in by an unrelated
// dependency, never referenced by kagent's own code), so this follows the
// one config loader in the corpus that is genuinely grounded in real usage
// rather than reaching for an ecosystem library nothing here exercises.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all process-wide configuration for the orchestration core.
type Config struct {
	Port int

	Cache     CacheConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig

	CredentialBackend string // "file" selects the encrypted file; any other value selects env
	CredentialSecret  string // encryption secret for the file backend
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled       bool
	TTL           time.Duration
	MaxSize       int
	SweepInterval time.Duration
}

// BreakerConfig configures new circuit breakers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MonitoringPeriod time.Duration
}

// RateLimitConfig configures the default provider token bucket.
type RateLimitConfig struct {
	Capacity        int
	RefillPerSecond float64
}

// Load reads configuration from AGENTCORE_-prefixed environment variables,
// falling back to the spec's defaults when unset or unparsable.
func Load() *Config {
	return &Config{
		Port: envInt("AGENTCORE_PORT", 8080),

		Cache: CacheConfig{
			Enabled:       envBool("AGENTCORE_CACHE_ENABLED", true),
			TTL:           envDuration("AGENTCORE_CACHE_TTL", 5*time.Minute),
			MaxSize:       envInt("AGENTCORE_CACHE_MAX_SIZE", 1000),
			SweepInterval: envDuration("AGENTCORE_CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("AGENTCORE_BREAKER_FAILURE_THRESHOLD", 3),
			ResetTimeout:     envDuration("AGENTCORE_BREAKER_RESET_TIMEOUT", 30*time.Second),
			MonitoringPeriod: envDuration("AGENTCORE_BREAKER_MONITORING_PERIOD", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Capacity:        envInt("AGENTCORE_RATE_LIMIT_CAPACITY", 10),
			RefillPerSecond: envFloat("AGENTCORE_RATE_LIMIT_REFILL_PER_SECOND", 10),
		},

		CredentialBackend: envStr("AGENTCORE_CREDENTIAL_BACKEND", "env"),
		CredentialSecret:  envStr("AGENTCORE_CREDENTIAL_SECRET", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
