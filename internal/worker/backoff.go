package worker

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy returns the wait before retry number retryCount (1-based).
type RetryPolicy interface {
	NextDelay(retryCount int) time.Duration
}

// ExponentialBackoff doubles BaseDelay per retry, caps at MaxDelay and
// applies 50% jitter unless NoJitter is set.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	NoJitter  bool
}

func (b ExponentialBackoff) NextDelay(retryCount int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = 10 * time.Second
	}
	if retryCount < 1 {
		retryCount = 1
	}
	backoff := float64(base) * math.Pow(2, float64(retryCount-1))
	if b.MaxDelay > 0 && backoff > float64(b.MaxDelay) {
		backoff = float64(b.MaxDelay)
	}
	if b.NoJitter {
		return time.Duration(backoff)
	}
	jitter := rand.Float64()*0.5 + 0.5 // 50% jitter
	return time.Duration(backoff * jitter)
}
