package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// MaxRetries is the maximum number of attempts before giving up.
	// Defaults to 5 if zero.
	MaxRetries int

	// Backoff is the initial wait between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

// Reconnector runs a recovery function with bounded retries and exponential
// backoff.
type Reconnector struct {
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig, log *slog.Logger) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconnector{
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		log:        log,
	}
}

// Retry calls attempt until it succeeds, ctx is done, or MaxRetries attempts
// have failed. attempt receives the 1-based attempt number. The returned
// error wraps the last failure.
func (r *Reconnector) Retry(ctx context.Context, attempt func(ctx context.Context, n int) error) error {
	currentBackoff := r.backoff
	var lastErr error

	for n := 1; n <= r.maxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.log.Info("voice: attempting reconnection",
			"attempt", n,
			"max_retries", r.maxRetries,
		)

		err := attempt(ctx, n)
		if err == nil {
			r.log.Info("voice: reconnection successful", "attempt", n)
			return nil
		}
		lastErr = err

		r.log.Warn("voice: reconnection attempt failed",
			"attempt", n,
			"backoff", currentBackoff,
			"error", err,
		)

		if n == r.maxRetries {
			break
		}

		// Wait before retrying.
		timer := time.NewTimer(currentBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff.
		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	r.log.Error("voice: reconnection failed after max retries",
		"max_retries", r.maxRetries,
		"error", lastErr,
	)
	return fmt.Errorf("voice: reconnect failed after %d attempts: %w", r.maxRetries, lastErr)
}
