package errors

import (
	"context"
	"math/rand"
	"time"
)

// BackoffConfig configures exponential backoff between retry attempts.
type BackoffConfig struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the delay between retries.
	Max time.Duration

	// Multiplier is the factor by which delay grows after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool
}

// DefaultBackoffConfig returns sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:       1 * time.Second,
		Max:        16 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// DelayFor returns the delay before retry number retry (1-based).
func (c BackoffConfig) DelayFor(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := c.Base
	for i := 1; i < retry; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay >= c.Max {
			delay = c.Max
			break
		}
	}
	if delay > c.Max {
		delay = c.Max
	}
	if c.Jitter {
		// delay * (0.5 + rand(0, 0.5))
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// Sleep waits for the given delay or until the context is cancelled.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
