package updater

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig describes an exponential backoff schedule for Backoff. The
// orchestrator's check loop does not use it: a failed check waits for the
// next check interval.
type RetryConfig struct {
	BaseInterval time.Duration
	MaxBackoff   time.Duration
	JitterMax    time.Duration
}

// DefaultRetryConfig mirrors the interval/backoff shape used elsewhere in
// the supervisor's retry paths.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseInterval: 5 * time.Second,
		MaxBackoff:   10 * time.Minute,
		JitterMax:    2 * time.Second,
	}
}

// Backoff returns the delay to wait before retry attempt (0-based),
// exponential up to MaxBackoff with additive jitter.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * cfg.BaseInterval
	if delay > cfg.MaxBackoff {
		delay = cfg.MaxBackoff
	}
	if cfg.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.JitterMax)))
	}
	return delay
}
