package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestUnderLimitAllowed(t *testing.T) {
	l := New(5, time.Minute)

	for i := 0; i < 5; i++ {
		res := l.Check("bot1", "user1")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.RetryAfter != 0 {
			t.Errorf("allowed result should have zero retry_after, got %v", res.RetryAfter)
		}
	}
}

func TestQuotaExceededDenied(t *testing.T) {
	clock := newFakeClock()
	l := New(10, 60*time.Second)
	l.SetNow(clock.Now)

	// Scenario: 10 requests pass, the 11th within the window is denied
	// with a positive retry hint.
	for i := 0; i < 10; i++ {
		if res := l.Check("bot1", "user1"); !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		clock.Advance(time.Second)
	}

	res := l.Check("bot1", "user1")
	if res.Allowed {
		t.Fatal("11th request within window should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("denied result should carry positive retry_after, got %v", res.RetryAfter)
	}
	// Oldest request was 10s ago, so the wait should be window minus that.
	if want := 50 * time.Second; res.RetryAfter != want {
		t.Errorf("retry_after = %v, want %v", res.RetryAfter, want)
	}
}

func TestDenyDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	l := New(3, time.Minute)
	l.SetNow(clock.Now)

	for i := 0; i < 3; i++ {
		l.Check("bot1", "user1")
	}

	// Hammer denied checks; they must not extend the block.
	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		if res := l.Check("bot1", "user1"); res.Allowed {
			t.Fatalf("check at +%ds should still be denied", i+1)
		}
	}

	// 60s after the first allowed request the window has cleared, despite
	// all the denied retries in between.
	clock.Advance(41 * time.Second)
	if res := l.Check("bot1", "user1"); !res.Allowed {
		t.Fatalf("request after window expiry should be allowed, retry_after=%v", res.RetryAfter)
	}
}

func TestWindowExpiryReadmits(t *testing.T) {
	clock := newFakeClock()
	l := New(2, 10*time.Second)
	l.SetNow(clock.Now)

	l.Check("bot1", "user1")
	l.Check("bot1", "user1")
	if res := l.Check("bot1", "user1"); res.Allowed {
		t.Fatal("third request should be denied")
	}

	clock.Advance(11 * time.Second)
	if res := l.Check("bot1", "user1"); !res.Allowed {
		t.Fatal("request after window should be allowed")
	}
}

func TestIdentitiesIndependent(t *testing.T) {
	l := New(2, time.Minute)

	l.Check("bot1", "user1")
	l.Check("bot1", "user1")
	if res := l.Check("bot1", "user1"); res.Allowed {
		t.Fatal("user1 should be limited")
	}

	// Different user, same bot.
	if res := l.Check("bot1", "user2"); !res.Allowed {
		t.Fatal("user2 should not be affected by user1's quota")
	}
	// Same user, different bot.
	if res := l.Check("bot2", "user1"); !res.Allowed {
		t.Fatal("bot2 state should be isolated from bot1")
	}
}

func TestRetryIn(t *testing.T) {
	clock := newFakeClock()
	l := New(1, 30*time.Second)
	l.SetNow(clock.Now)

	if d := l.RetryIn("bot1", "user1"); d != 0 {
		t.Errorf("fresh identity should have zero wait, got %v", d)
	}

	l.Check("bot1", "user1")
	clock.Advance(10 * time.Second)

	if d := l.RetryIn("bot1", "user1"); d != 20*time.Second {
		t.Errorf("RetryIn = %v, want 20s", d)
	}

	// RetryIn must not record anything.
	clock.Advance(20 * time.Second)
	if res := l.Check("bot1", "user1"); !res.Allowed {
		t.Fatal("check after window should be allowed; RetryIn must not consume quota")
	}
}

func TestReset(t *testing.T) {
	l := New(1, time.Minute)
	l.Check("bot1", "user1")
	if res := l.Check("bot1", "user1"); res.Allowed {
		t.Fatal("second request should be denied")
	}

	l.Reset("bot1", "user1")
	if res := l.Check("bot1", "user1"); !res.Allowed {
		t.Fatal("request after reset should be allowed")
	}
}

func TestConcurrentChecks(t *testing.T) {
	l := New(50, time.Minute)

	var wg sync.WaitGroup
	allowed := make([]int, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if res := l.Check("bot1", "user1"); res.Allowed {
					allowed[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, n := range allowed {
		total += n
	}
	if total != 50 {
		t.Errorf("exactly quota requests should pass under concurrency, got %d", total)
	}
}

func TestConcurrentUsersDoNotContend(t *testing.T) {
	// Smoke test: many goroutines on distinct identities finish quickly
	// and each gets its full quota.
	l := New(10, time.Minute)

	var wg sync.WaitGroup
	for u := 0; u < 32; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := string(rune('a' + u%26))
			for i := 0; i < 10; i++ {
				l.Check("bot1", user+"-distinct")
			}
		}(u)
	}
	wg.Wait()
}
