package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func fail(context.Context) error { return errBackend }
func ok(context.Context) error   { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := b.Call(ctx, fail); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker must short-circuit: err=%v called=%v", err, called)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	_ = b.Call(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatalf("expected open")
	}
	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if err := b.Call(context.Background(), ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	_ = b.Call(context.Background(), fail)
	now = now.Add(2 * time.Second)
	_ = b.Call(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatalf("expected reopen, got %s", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1})
	_ = b.Call(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("cancellation should not trip the breaker")
	}
}
