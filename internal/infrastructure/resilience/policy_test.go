package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	got := Config{}.normalize()
	def := DefaultConfig()

	assert.Equal(t, def.RetryMaxAttempts, got.RetryMaxAttempts)
	assert.Equal(t, def.RetryInitialBackoff, got.RetryInitialBackoff)
	assert.Equal(t, def.RetryMaxBackoff, got.RetryMaxBackoff)
	assert.Equal(t, def.RetryMultiplier, got.RetryMultiplier)
	assert.Equal(t, def.BreakerMinRequests, got.BreakerMinRequests)
	assert.Equal(t, def.BreakerHalfOpenMaxCalls, got.BreakerHalfOpenMaxCalls)
	assert.False(t, got.BreakerEnabled, "an explicit zero config keeps the breaker off")
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	got := Config{
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     10 * time.Millisecond,
		RetryMultiplier:     0.5,
		BreakerFailureRatio: 1.5,
	}.normalize()

	assert.Equal(t, time.Second, got.RetryMaxBackoff)
	assert.Equal(t, 2.0, got.RetryMultiplier)
	assert.Equal(t, 0.5, got.BreakerFailureRatio)
}
