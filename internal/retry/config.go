// Package retry implements the Transaction Runner's backoff configuration
// and transient-error classification, grounded on the teacher's
// pkg/mretry.Config builder/validate pattern (its constants re-tuned to the
// Runner's own defaults from spec §4.1 rather than the outbox-worker
// defaults that package uses elsewhere in the teacher).
package retry

import (
	"fmt"
	"math/rand"
	"time"
)

// LockMode selects how the Mutator serializes writes to an account.
type LockMode string

const (
	LockModeWait       LockMode = "wait"
	LockModeNoWait     LockMode = "nowait"
	LockModeOptimistic LockMode = "optimistic"
)

// Config is the retry/backoff policy for one Transaction Runner instance.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultRunnerConfig returns the Runner's defaults for optimistic lock
// mode: base=50ms, max=500ms, 3 retries (spec §4.1).
func DefaultRunnerConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		JitterFactor:   0.5,
	}
}

// DefaultPessimisticRunnerConfig returns the Runner's defaults for
// pessimistic lock mode: 0 retries by default, since the row lock already
// serializes writers and a retry would just re-wait on the same lock.
func DefaultPessimisticRunnerConfig() Config {
	c := DefaultRunnerConfig()
	c.MaxRetries = 0
	return c
}

// WithMaxRetries returns a copy of c with MaxRetries set.
func (c Config) WithMaxRetries(n int) Config { c.MaxRetries = n; return c }

// WithInitialBackoff returns a copy of c with InitialBackoff set.
func (c Config) WithInitialBackoff(d time.Duration) Config { c.InitialBackoff = d; return c }

// WithMaxBackoff returns a copy of c with MaxBackoff set.
func (c Config) WithMaxBackoff(d time.Duration) Config { c.MaxBackoff = d; return c }

// WithJitterFactor returns a copy of c with JitterFactor set.
func (c Config) WithJitterFactor(f float64) Config { c.JitterFactor = f; return c }

// ConfigValidationError reports a single invalid field, matching the
// teacher's "mretry: invalid %s: %s" message format.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("retry: invalid %s: %s", e.Field, e.Message)
}

// Validate rejects nonsensical configuration before it reaches the Runner.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return &ConfigValidationError{Field: "MaxRetries", Message: "must be >= 0"}
	}
	if c.InitialBackoff <= 0 {
		return &ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}
	if c.MaxBackoff < c.InitialBackoff {
		return &ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return &ConfigValidationError{Field: "JitterFactor", Message: "must be within [0, 1]"}
	}
	return nil
}

// Backoff computes min(base*2^attempt, max) * (0.5 + rand*jitterFactor),
// matching spec §4.1's formula when JitterFactor is 1 (rand in [0,1) maps
// to the [0.5, 1.5) multiplier spec.md describes as "0.5 + rand").
func (c Config) Backoff(attempt int) time.Duration {
	base := float64(c.InitialBackoff)
	capped := base
	for i := 0; i < attempt; i++ {
		capped *= 2
		if capped >= float64(c.MaxBackoff) {
			capped = float64(c.MaxBackoff)
			break
		}
	}
	jitter := 0.5 + rand.Float64()*c.JitterFactor
	return time.Duration(capped * jitter)
}
