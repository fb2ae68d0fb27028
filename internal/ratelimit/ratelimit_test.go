package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestLimiter(rate int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(rate, window)
	l.now = clock.now
	return l, clock
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("client-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("client-1") {
		t.Fatal("fourth request should be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("client-1") {
		t.Fatal("first key should be allowed")
	}
	if !l.Allow("client-2") {
		t.Fatal("second key has its own bucket")
	}
	if l.Allow("client-1") {
		t.Fatal("first key should now be exhausted")
	}
}

func TestRefillOverTime(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("client-1")
	l.Allow("client-1")
	if l.Allow("client-1") {
		t.Fatal("bucket should be empty")
	}

	// Half the window refills half the bucket.
	clock.advance(30 * time.Second)
	if !l.Allow("client-1") {
		t.Fatal("one token should have refilled")
	}
	if l.Allow("client-1") {
		t.Fatal("only one token should have refilled")
	}
}

func TestRefillCapsAtRate(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("client-1")
	clock.advance(time.Hour)

	for i := 0; i < 2; i++ {
		if !l.Allow("client-1") {
			t.Fatalf("request %d should be allowed after full refill", i+1)
		}
	}
	if l.Allow("client-1") {
		t.Fatal("tokens must not accumulate past the rate")
	}
}

func TestStatus(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	limit, remaining, resetAt := l.Status("client-1")
	if limit != 5 || remaining != 5 {
		t.Errorf("fresh bucket: limit=%d remaining=%d, want 5/5", limit, remaining)
	}
	if !resetAt.Equal(clock.current) {
		t.Errorf("full bucket resets now, got %v", resetAt)
	}

	l.Allow("client-1")
	l.Allow("client-1")

	_, remaining, resetAt = l.Status("client-1")
	if remaining != 3 {
		t.Errorf("remaining = %d, want 3", remaining)
	}
	if !resetAt.After(clock.current) {
		t.Error("partially drained bucket should reset in the future")
	}
}
