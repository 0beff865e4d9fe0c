package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docvault/docvault/pkg/fn"
)

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 2})
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst of 2 should allow two calls")
	}
	if l.Allow() {
		t.Fatal("third immediate call should be limited")
	}
}

func TestLimiterRefill(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 1})
	base := time.Now()
	l.now = func() time.Time { return base }
	if !l.Allow() {
		t.Fatal("first call should pass")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}
	// 200ms at 10/s refills two tokens, capped at burst 1.
	l.now = func() time.Time { return base.Add(200 * time.Millisecond) }
	if !l.Allow() {
		t.Fatal("bucket should have refilled")
	}
	if l.Allow() {
		t.Fatal("refill must cap at burst")
	}
}

func TestLimiterZeroRateDefaults(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	if !l.Allow() {
		t.Fatal("first call should pass")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}
	// Defaulted rate of 1/s refills after a second; without the default
	// the deficit division is +Inf and Wait degrades to a busy loop.
	base := time.Now()
	l.now = func() time.Time { return base.Add(time.Second) }
	if !l.Allow() {
		t.Fatal("token should refill at the defaulted rate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait on an empty bucket should respect ctx, got %v", err)
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLimiterCall(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	called := false
	err := l.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("call: %v called=%v", err, called)
	}
	err = l.Call(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	fail := func(context.Context) error { return errors.New("down") }

	b.Call(context.Background(), fail)
	if b.State() != StateClosed {
		t.Fatal("one failure should not trip")
	}
	b.Call(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatal("threshold failures should trip the breaker")
	}
	if err := b.Call(context.Background(), fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second, HalfOpenMax: 1})
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Call(context.Background(), func(context.Context) error { return errors.New("down") })
	if b.State() != StateOpen {
		t.Fatal("should be open")
	}

	// After the timeout a probe is allowed; success closes the breaker.
	b.now = func() time.Time { return base.Add(11 * time.Second) }
	err := b.Call(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("successful probe should close breaker, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second})
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Call(context.Background(), func(context.Context) error { return errors.New("down") })
	b.now = func() time.Time { return base.Add(2 * time.Second) }
	b.Call(context.Background(), func(context.Context) error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatal("failed probe should reopen breaker")
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	stage := BreakerStage(b, func(_ context.Context, n int) fn.Result[int] {
		return fn.Errf[int]("fail %d", n)
	})
	stage(context.Background(), 1)
	r := stage(context.Background(), 2)
	_, err := r.Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open through stage, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if st.String() != want {
			t.Errorf("State(%d) = %q, want %q", st, st.String(), want)
		}
	}
}
