package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerStateValue_MapsKnownStates(t *testing.T) {
	assert.Equal(t, 0.0, BreakerStateValue("CLOSED"))
	assert.Equal(t, 1.0, BreakerStateValue("OPEN"))
	assert.Equal(t, 2.0, BreakerStateValue("HALF_OPEN"))
	assert.Equal(t, 0.0, BreakerStateValue("anything else"))
}

func TestInstruments_AreRegisteredAndUsable(t *testing.T) {
	BreakerState.WithLabelValues("model", "gpt-test").Set(1)
	CacheHits.WithLabelValues("hit").Inc()
	RateLimitRejections.WithLabelValues("openai").Inc()
	ModelFallbacks.WithLabelValues("gpt-test", "gpt-fallback").Inc()
	OrchestrationDuration.WithLabelValues("parallel", "success").Observe(0.5)
}
