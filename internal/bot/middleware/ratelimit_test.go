package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("first two events must pass")
	}
	if rl.Allow(1) {
		t.Fatal("third event in window must be limited")
	}
	if !rl.Allow(2) {
		t.Fatal("limits are per user")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow(1) {
		t.Fatal("window must slide")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Close()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	now = now.Add(2 * time.Minute)
	rl.Allow(2)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.requests[1]; ok {
		t.Fatal("stale user must be removed")
	}
	if len(rl.requests[2]) != 1 {
		t.Fatalf("active user lost: %v", rl.requests[2])
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		if !rl.Allow(1) {
			t.Fatal("zero limit must disable limiting")
		}
	}
}
