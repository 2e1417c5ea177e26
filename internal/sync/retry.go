package sync

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy defaults for queued changes.
const (
	DefaultMaxRetries   = 8
	DefaultRetryInitial = 30 * time.Second
	DefaultRetryMax     = time.Hour
	DefaultRetryJitter  = 0.25
	retryMultiplier     = 2.0
)

// RetryConfig bounds how often a failing change is retried. After
// MaxRetries failures a change is permanent and is only reported until the
// queue's failures are reset.
type RetryConfig struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Jitter     float64 // randomization factor in [0, 1)
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		Initial:    DefaultRetryInitial,
		Max:        DefaultRetryMax,
		Jitter:     DefaultRetryJitter,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.Initial <= 0 {
		c.Initial = DefaultRetryInitial
	}

	if c.Max < c.Initial {
		c.Max = max(DefaultRetryMax, c.Initial)
	}

	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = DefaultRetryJitter
	}

	return c
}

// newBackOff returns a fresh exponential policy. BackOff values are
// stateful, so every computation starts from Reset.
func (c RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.Initial
	bo.Multiplier = retryMultiplier
	bo.MaxInterval = c.Max
	bo.RandomizationFactor = c.Jitter
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// Delay returns the wait before the next attempt of a change that has
// failed attempt times (attempt >= 1).
func (c RetryConfig) Delay(attempt int) time.Duration {
	bo := c.newBackOff()

	d := c.Initial
	for range max(attempt, 1) {
		d = bo.NextBackOff()
	}

	return d
}

// NextAttempt returns when a change that has failed attempt times becomes
// eligible again.
func (c RetryConfig) NextAttempt(now time.Time, attempt int) time.Time {
	return now.Add(c.Delay(attempt)).UTC()
}
