package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucket_AdmitsUpToCapacityThenRejects(t *testing.T) {
	b := NewBucket(3, 0) // burst of 3, no refill within the test window
	for i := 0; i < 3; i++ {
		ok, _ := b.Admit()
		require.True(t, ok, "call %d should be admitted", i)
	}

	ok, wait := b.Admit()
	require.False(t, ok)
	require.Greater(t, wait, time.Duration(0), "rejected call must carry a positive wait hint")
}

func TestBucket_NeverAdmitsNegativeTokens(t *testing.T) {
	b := NewBucket(1, 0.001)
	ok, _ := b.Admit()
	require.True(t, ok)

	// Immediately retrying must fail rather than going into debt.
	ok, _ = b.Admit()
	require.False(t, ok)
}

func TestRegistry_AdmitLazilyCreatesDefaultBucket(t *testing.T) {
	r := NewRegistry()
	ok, _ := r.Admit("unconfigured-provider")
	require.True(t, ok, "first call against a never-configured provider should be admitted by the default bucket")
}

func TestRegistry_ConfiguredBucketIsPerProvider(t *testing.T) {
	r := NewRegistry()
	r.Configure("gemini", 1, 0)
	r.Configure("anthropic", 1, 0)

	ok, _ := r.Admit("gemini")
	require.True(t, ok)
	ok, _ = r.Admit("gemini")
	require.False(t, ok, "gemini's bucket should be exhausted")

	ok, _ = r.Admit("anthropic")
	require.True(t, ok, "anthropic has its own independent bucket")
}
