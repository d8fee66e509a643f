package ratelimiter

import (
	"fmt"
	"time"
)

// Config is the immutable tunable triple a Limiter enforces: how often the
// token budget refreshes, how many permits a refresh grants, and how long a
// caller is willing to wait for a grant. Config values never mutate in
// place; ChangeTimeout and ChangeLimitForPeriod on a Limiter install a new
// Config through the same CAS path that handles permit accounting.
type Config struct {
	// RefreshPeriod is the duration of one accounting cycle. Must be > 0.
	RefreshPeriod time.Duration

	// LimitForPeriod is the number of permits granted at the start of each
	// cycle. Must be >= 1.
	LimitForPeriod int64

	// AcquireTimeout bounds how long Acquire/Reserve will wait for a
	// reservation to mature. Zero means "never wait".
	AcquireTimeout time.Duration

	// DrainOnResult, when non-nil, is consulted by callers that want to
	// discard the remaining budget after an outcome (for example: drain
	// after every downstream error). The limiter itself never calls this;
	// it is surfaced for external collaborators (circuit breakers, retry
	// policies) that wrap a Limiter and decide to call Drain.
	DrainOnResult func(err error) bool
}

// ConfigOption configures a Config built by NewConfig.
type ConfigOption func(*Config)

// WithRefreshPeriod sets the accounting cycle length.
func WithRefreshPeriod(d time.Duration) ConfigOption {
	return func(c *Config) { c.RefreshPeriod = d }
}

// WithLimitForPeriod sets the number of permits granted per cycle.
func WithLimitForPeriod(n int64) ConfigOption {
	return func(c *Config) { c.LimitForPeriod = n }
}

// WithAcquireTimeout sets how long a caller will wait for a reservation.
func WithAcquireTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.AcquireTimeout = d }
}

// WithDrainOnResult sets the optional drain-on-result predicate.
func WithDrainOnResult(pred func(error) bool) ConfigOption {
	return func(c *Config) { c.DrainOnResult = pred }
}

// DefaultConfig mirrors the Resilience4j defaults this limiter is ported
// from: a 500ms refresh period, 50 permits per period, and a 5s acquire
// timeout.
func DefaultConfig() Config {
	return Config{
		RefreshPeriod:  500 * time.Millisecond,
		LimitForPeriod: 50,
		AcquireTimeout: 5 * time.Second,
	}
}

// NewConfig builds a Config from DefaultConfig plus the given options,
// validating the result. RefreshPeriod <= 0, LimitForPeriod < 1, or a
// negative AcquireTimeout return ErrInvalidConfiguration.
func NewConfig(opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RefreshPeriod <= 0 {
		return fmt.Errorf("%w: refresh period must be > 0, got %s", ErrInvalidConfiguration, c.RefreshPeriod)
	}
	if c.LimitForPeriod < 1 {
		return fmt.Errorf("%w: limit for period must be >= 1, got %d", ErrInvalidConfiguration, c.LimitForPeriod)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("%w: acquire timeout must be >= 0, got %s", ErrInvalidConfiguration, c.AcquireTimeout)
	}
	return nil
}

// withTimeout returns a copy of c with RefreshPeriod/LimitForPeriod unchanged
// and AcquireTimeout replaced, used internally by Limiter.ChangeTimeout.
func (c Config) withTimeout(d time.Duration) Config {
	updated := c
	updated.AcquireTimeout = d
	return updated
}

// withLimitForPeriod returns a copy of c with LimitForPeriod replaced, used
// internally by Limiter.ChangeLimitForPeriod.
func (c Config) withLimitForPeriod(n int64) Config {
	updated := c
	updated.LimitForPeriod = n
	return updated
}
