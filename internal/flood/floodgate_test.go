package flood

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestFloodgate(t *testing.T, limit int) (*Floodgate, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	fg := New(limit)
	fg.now = clock.Now
	t.Cleanup(fg.Stop)
	return fg, clock
}

func TestFloodgate_Allow_WithinLimit(t *testing.T) {
	fg, _ := newTestFloodgate(t, 3)

	for i := 0; i < 3; i++ {
		if !fg.Allow("listener-1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	if fg.Allow("listener-1") {
		t.Error("4th request should be blocked")
	}
}

func TestFloodgate_Allow_SlidingWindow(t *testing.T) {
	fg, clock := newTestFloodgate(t, 2)

	fg.Allow("listener-1")
	clock.Advance(30 * time.Second)
	fg.Allow("listener-1")

	if fg.Allow("listener-1") {
		t.Fatal("third request inside the window should be blocked")
	}

	// The first request leaves the window after 60s; the second is still inside it.
	clock.Advance(31 * time.Second)
	if !fg.Allow("listener-1") {
		t.Error("request after the oldest one expired should be allowed")
	}
	if fg.Allow("listener-1") {
		t.Error("window should be full again")
	}
}

func TestFloodgate_Allow_BlockedRequestsDoNotCount(t *testing.T) {
	fg, clock := newTestFloodgate(t, 1)

	fg.Allow("listener-1")
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		fg.Allow("listener-1")
	}

	clock.Advance(11 * time.Second)
	if !fg.Allow("listener-1") {
		t.Error("blocked attempts must not extend the window")
	}
}

func TestFloodgate_Allow_PerListener(t *testing.T) {
	fg, _ := newTestFloodgate(t, 1)

	if !fg.Allow("listener-1") {
		t.Error("listener-1 first request should be allowed")
	}
	if !fg.Allow("listener-2") {
		t.Error("listener-2 has its own window")
	}
	if fg.Allow("listener-1") {
		t.Error("listener-1 second request should be blocked")
	}
}

func TestFloodgate_Disabled(t *testing.T) {
	for _, limit := range []int{0, -1} {
		fg := New(limit)
		if fg.Enabled() {
			t.Errorf("limit %d should disable the floodgate", limit)
		}
		for i := 0; i < 100; i++ {
			if !fg.Allow("listener-1") {
				t.Fatalf("disabled floodgate blocked request %d", i+1)
			}
		}
		if got := fg.RetryAfter("listener-1"); got != 0 {
			t.Errorf("RetryAfter = %s on a disabled floodgate", got)
		}
		fg.Stop()
	}
}

func TestFloodgate_RetryAfter(t *testing.T) {
	fg, clock := newTestFloodgate(t, 2)

	if got := fg.RetryAfter("unknown"); got != 0 {
		t.Errorf("RetryAfter for unknown listener = %s, want 0", got)
	}

	fg.Allow("listener-1")
	clock.Advance(20 * time.Second)
	fg.Allow("listener-1")
	if got := fg.RetryAfter("listener-1"); got != 40*time.Second {
		t.Errorf("RetryAfter = %s, want 40s", got)
	}

	clock.Advance(40 * time.Second)
	if got := fg.RetryAfter("listener-1"); got != 0 {
		t.Errorf("RetryAfter after expiry = %s, want 0", got)
	}
}

func TestFloodgate_Cleanup(t *testing.T) {
	fg, clock := newTestFloodgate(t, 5)

	fg.Allow("idle")
	clock.Advance(idleTimeout / 2)
	fg.Allow("active")
	clock.Advance(idleTimeout/2 + time.Second)

	fg.performCleanup()

	stats := fg.GetStats()
	if stats.ActiveListeners != 1 {
		t.Errorf("ActiveListeners = %d, want 1", stats.ActiveListeners)
	}
	if _, exists := fg.entries["active"]; !exists {
		t.Error("recently seen listener was removed")
	}
}

func TestFloodgate_GetStats(t *testing.T) {
	fg, _ := newTestFloodgate(t, 4)
	fg.Allow("a")
	fg.Allow("b")

	stats := fg.GetStats()
	if stats.ActiveListeners != 2 || stats.LimitPerMinute != 4 || stats.WindowSeconds != 60 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFloodgate_StopTwice(_ *testing.T) {
	fg := New(1)
	fg.Stop()
	fg.Stop()
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	fg, _ := newTestFloodgate(t, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if fg.Allow("listener-1") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d requests, want exactly 50", allowed)
	}
}
