package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Backoff describes how startup probes of optional dependencies are retried.
type Backoff struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff is 3 attempts, 500ms then 1s between them.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:     3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// delay returns the pause after the given zero-based attempt, without jitter.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	return min(d, b.MaxDelay)
}

// Probe runs fn until it succeeds, the error is not transient, attempts run
// out or ctx ends. The last error is returned.
func Probe(ctx context.Context, b Backoff, logger *slog.Logger, name string, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := max(b.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) || attempt == attempts-1 {
			break
		}

		wait := min(withJitter(b.delay(attempt)), b.MaxDelay)
		logger.Debug("dependency probe failed, retrying",
			slog.String("dependency", name),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", lastErr.Error()),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// withJitter spreads d over [0.75d, 1.25d).
func withJitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "tls", "eof", "loading"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
