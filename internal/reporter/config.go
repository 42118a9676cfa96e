package reporter

import (
	"fmt"
	"time"
)

// Defaults for the reporting loop.
const (
	DefaultInterval   = time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Config is the resolved runtime configuration of a Reporter.
type Config struct {
	// Interval is the fixed tick period of the reporting loop.
	Interval time.Duration
	// MaxRetries is the total number of send attempts per cycle, first
	// attempt included.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts. Not exponential.
	RetryDelay time.Duration
	// EnableRetry turns retrying off entirely; one attempt per cycle.
	EnableRetry bool
}

// DefaultConfig returns the stock configuration: 1 s interval, 3 attempts,
// 2 s between attempts.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		EnableRetry: true,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %v", c.RetryDelay)
	}
	return nil
}

// ConfigUpdate is a partial configuration change. Nil fields keep their
// current value.
type ConfigUpdate struct {
	Interval    *time.Duration
	MaxRetries  *int
	RetryDelay  *time.Duration
	EnableRetry *bool
}

// applyTo merges the update into cfg.
func (u ConfigUpdate) applyTo(cfg *Config) {
	if u.Interval != nil {
		cfg.Interval = *u.Interval
	}
	if u.MaxRetries != nil {
		cfg.MaxRetries = *u.MaxRetries
	}
	if u.RetryDelay != nil {
		cfg.RetryDelay = *u.RetryDelay
	}
	if u.EnableRetry != nil {
		cfg.EnableRetry = *u.EnableRetry
	}
}
