package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDailyQuota(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.AllowRequest("alice", 2))
	assert.False(t, rl.AllowRequest("alice", 2))
	assert.True(t, rl.AllowRequest("alice", 1))
	assert.True(t, rl.AllowRequest("bob", 3))

	now = now.Add(24 * time.Hour)
	assert.True(t, rl.AllowRequest("alice", 3))
}

func TestRateLimiterResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.AllowRequest("alice", 2))
	assert.False(t, rl.AllowRequest("alice", 1))

	now = time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	assert.True(t, rl.AllowRequest("alice", 2))

	now = now.Add(23 * time.Hour)
	assert.False(t, rl.AllowRequest("alice", 1))
}

func TestRateLimiterRefund(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.AllowRequest("alice", 3))
	rl.Refund("alice", 2)
	assert.True(t, rl.AllowRequest("alice", 2))
	assert.False(t, rl.AllowRequest("alice", 1))

	rl.Refund("alice", 10)
	assert.True(t, rl.AllowRequest("alice", 3))
	assert.False(t, rl.AllowRequest("alice", 1))
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.AllowRequest("alice", 1000))
	assert.True(t, NewRateLimiter(0).AllowRequest("alice", 1000))
	nilLimiter.Refund("alice", 1)
}
