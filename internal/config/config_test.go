package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "abc")
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "42")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_BAD_INT", "forty")
	t.Setenv("X_BAD_DUR", "soon")

	assert.Equal(t, "abc", envStr("X_STR", "d"))
	assert.Equal(t, "d", envStr("X_MISSING", "d"))
	assert.True(t, envBool("X_BOOL", false))
	assert.False(t, envBool("X_MISSING", false))
	assert.Equal(t, 42, envInt("X_INT", 7))
	assert.Equal(t, 7, envInt("X_BAD_INT", 7), "malformed value falls back to the default")
	assert.Equal(t, 90*time.Second, envDur("X_DUR", time.Second))
	assert.Equal(t, time.Second, envDur("X_BAD_DUR", time.Second))
}

func TestLoadHoldConfigDefaults(t *testing.T) {
	for _, k := range []string{"HOLD_DURATION", "REAPER_INTERVAL", "LOCK_TTL",
		"MAX_SEATS_PER_RESERVATION", "MAX_TICKETS_PER_RESERVATION"} {
		t.Setenv(k, "")
	}

	cfg := LoadHoldConfig()
	assert.Equal(t, 5*time.Minute, cfg.HoldDuration)
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 1, cfg.MaxSeats)
	assert.Equal(t, 4, cfg.MaxTickets)
}

func TestLoadRateLimitConfigNormalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "")

	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Capacity, "capacity never drops below one token")
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL, "floored at five refill intervals")
}

func TestLoadRateLimitConfigBurstOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "60")
	t.Setenv("RATE_LIMIT_BURST", "120")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "500ms")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "")
	t.Setenv("RATE_LIMIT_TTL", "")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 120, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens, "REFILL_EVERY switches to one-token refills")
	assert.Equal(t, 500*time.Millisecond, cfg.RefillInterval)
}
