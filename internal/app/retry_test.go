package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{
		Attempts:     attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestProbe_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Probe(context.Background(), DefaultBackoff(), nil, "redis", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProbe_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Probe(context.Background(), fastBackoff(3), nil, "redis", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial tcp: connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestProbe_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Probe(context.Background(), fastBackoff(3), nil, "redis", func(context.Context) error {
		calls++
		return fmt.Errorf("i/o timeout")
	})
	if err == nil || err.Error() != "i/o timeout" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestProbe_NonTransientErrorFailsImmediately(t *testing.T) {
	calls := 0
	err := Probe(context.Background(), fastBackoff(5), nil, "redis", func(context.Context) error {
		calls++
		return errors.New("WRONGPASS invalid username-password pair")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProbe_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	backoff := Backoff{Attempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	err := Probe(ctx, backoff, nil, "redis", func(context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("connection reset by peer")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{InitialDelay: 50 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{8, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWithJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := withJitter(100 * time.Millisecond)
		if got < 75*time.Millisecond || got >= 125*time.Millisecond {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
}
