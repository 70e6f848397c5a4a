package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: 5 * time.Minute,
	}
}

func TestBreaker_ClosedAdmitsUntilThreshold(t *testing.T) {
	b := New(testConfig())
	now := time.Now()

	require.True(t, b.Allow(now))
	b.RecordFailure(now)
	require.Equal(t, StateClosed, b.Status().State)

	b.RecordFailure(now)
	require.Equal(t, StateClosed, b.Status().State)

	b.RecordFailure(now)
	require.Equal(t, StateOpen, b.Status().State)
}

func TestBreaker_OpenRefusesUntilResetTimeout(t *testing.T) {
	b := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}
	require.Equal(t, StateOpen, b.Status().State)

	require.False(t, b.Allow(now.Add(time.Second)))
	require.False(t, b.Allow(now.Add(29*time.Second)))
}

func TestBreaker_HalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	b := New(testConfig())
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}

	afterReset := now.Add(31 * time.Second)
	require.True(t, b.Allow(afterReset))
	require.Equal(t, StateHalfOpen, b.Status().State)

	// A second concurrent caller must be refused: exactly one probe in flight.
	require.False(t, b.Allow(afterReset))
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(testConfig())
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}
	afterReset := now.Add(31 * time.Second)
	require.True(t, b.Allow(afterReset))

	b.RecordSuccess(afterReset)
	require.Equal(t, StateClosed, b.Status().State)
	require.True(t, b.Allow(afterReset))
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(testConfig())
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}
	afterReset := now.Add(31 * time.Second)
	require.True(t, b.Allow(afterReset))

	b.RecordFailure(afterReset)
	require.Equal(t, StateOpen, b.Status().State)
	require.False(t, b.Allow(afterReset.Add(time.Second)))
}

func TestRegistry_GetIsLazyAndStable(t *testing.T) {
	r := NewRegistry(testConfig())
	a := r.Get("model", "gemini-2.0-flash")
	b := r.Get("model", "gemini-2.0-flash")
	require.Same(t, a, b)

	c := r.Get("model", "claude-sonnet-4")
	require.NotSame(t, a, c)
}
