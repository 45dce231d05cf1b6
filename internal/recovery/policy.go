package recovery

import (
	"math"
	"time"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

// NextDelay computes the automatic retry delay for a failure of kind after
// attempt retries have been consumed: RateLimitDelay for rate limits,
// BaseDelay * 2^attempt otherwise. It saturates instead of overflowing.
func (c Config) NextDelay(kind fault.Kind, attempt int) time.Duration {
	if kind == fault.KindRateLimit {
		return c.RateLimitDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			return math.MaxInt64
		}
		delay *= 2
	}
	return delay
}

// countdownSeconds is ceil(delay / 1s).
func countdownSeconds(delay time.Duration) int {
	if delay <= 0 {
		return 0
	}
	return int((delay + time.Second - 1) / time.Second)
}

type decision int

const (
	decideExhaust decision = iota
	decideWaitForUser
	decideAutoRetry
)

// decide applies the auto-retry policy once per Failed entry.
func (c Config) decide(kind fault.Kind, attempt int) decision {
	switch {
	case attempt >= c.MaxRetries:
		return decideExhaust
	case !kind.Retriable():
		return decideWaitForUser
	default:
		return decideAutoRetry
	}
}
