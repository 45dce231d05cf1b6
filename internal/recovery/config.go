package recovery

import (
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultMaxRetries     = 3
	defaultBaseDelay      = time.Second
	defaultRateLimitDelay = 60 * time.Second
	defaultEscapeTarget   = "/dashboard"
)

// Config controls the retry budget and delays of one Controller. It is fixed
// for the controller's lifetime.
type Config struct {
	// OperationName labels the protected operation in snapshots and logs.
	OperationName string

	// MaxRetries is the number of retries allowed before the controller is
	// exhausted. Zero disables retrying. Default: 3.
	MaxRetries int

	// BaseDelay is the first automatic retry delay; it doubles per consumed
	// retry. Default: 1s.
	BaseDelay time.Duration

	// RateLimitDelay replaces exponential backoff for rate_limit failures.
	// Default: 60s.
	RateLimitDelay time.Duration

	// EscapeTarget is where the host's escape action navigates.
	// Default: "/dashboard".
	EscapeTarget string
}

// DefaultConfig returns the standard recovery configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     defaultMaxRetries,
		BaseDelay:      defaultBaseDelay,
		RateLimitDelay: defaultRateLimitDelay,
		EscapeTarget:   defaultEscapeTarget,
	}
}

// FromSettings converts config values to a Config. Non-positive delays fall
// back to defaults.
func FromSettings(operation string, maxRetries, baseDelayMs, rateLimitDelayMs int, escapeTarget string) Config {
	cfg := DefaultConfig()
	cfg.OperationName = operation
	cfg.MaxRetries = maxRetries
	if baseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if rateLimitDelayMs > 0 {
		cfg.RateLimitDelay = time.Duration(rateLimitDelayMs) * time.Millisecond
	}
	if escapeTarget != "" {
		cfg.EscapeTarget = escapeTarget
	}
	return cfg
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return eris.Errorf("recovery: max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return eris.Errorf("recovery: base delay must be positive, got %s", c.BaseDelay)
	}
	if c.RateLimitDelay <= 0 {
		return eris.Errorf("recovery: rate limit delay must be positive, got %s", c.RateLimitDelay)
	}
	return nil
}

func applyDefaults(cfg Config) Config {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = defaultRateLimitDelay
	}
	if cfg.EscapeTarget == "" {
		cfg.EscapeTarget = defaultEscapeTarget
	}
	return cfg
}
