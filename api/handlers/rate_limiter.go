package handlers

import (
	"sync"
	"time"
)

// RateLimiter caps how many notifications each user may send per UTC day.
type RateLimiter struct {
	mu         sync.Mutex
	limits     map[string]*clientLimit
	dailyLimit int
	now        func() time.Time
}

type clientLimit struct {
	dailyCount int
	day        time.Time
}

// NewRateLimiter returns a limiter allowing dailyLimit notifications per
// user. A limit of zero or less disables it.
func NewRateLimiter(dailyLimit int) *RateLimiter {
	return &RateLimiter{
		limits:     make(map[string]*clientLimit),
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// AllowRequest reserves n notifications for userID and reports whether the
// quota had room for all of them. Counts reset at UTC midnight.
func (rl *RateLimiter) AllowRequest(userID string, n int) bool {
	if rl == nil || rl.dailyLimit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.current(userID)
	if limit.dailyCount+n > rl.dailyLimit {
		return false
	}
	limit.dailyCount += n
	return true
}

// Refund returns n previously reserved notifications to userID's quota.
func (rl *RateLimiter) Refund(userID string, n int) {
	if rl == nil || rl.dailyLimit <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.current(userID)
	limit.dailyCount = max(limit.dailyCount-n, 0)
}

// current returns userID's counter for today, starting a fresh one after
// midnight. Callers hold mu.
func (rl *RateLimiter) current(userID string) *clientLimit {
	y, m, d := rl.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	limit, exists := rl.limits[userID]
	if !exists || !limit.day.Equal(today) {
		limit = &clientLimit{day: today}
		rl.limits[userID] = limit
	}
	return limit
}
