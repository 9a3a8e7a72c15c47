// Package flood throttles listeners that trigger expensive library operations too often.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window the limit applies to.
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle listeners are forgotten.
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a listener stays tracked after its last request.
	idleTimeout = 10 * time.Minute
)

// Floodgate is a per-listener sliding window limiter. A limit of zero or less admits everything.
type Floodgate struct {
	limitPerMinute int
	entries        map[string]*listenerEntry
	mutex          sync.Mutex
	now            func() time.Time
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

type listenerEntry struct {
	timestamps []time.Time // admitted requests inside the window, oldest first
	lastSeen   time.Time
}

// New creates a Floodgate admitting limitPerMinute requests per listener per minute. Call Stop
// to end the background cleanup.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*listenerEntry),
		now:            time.Now,
		stopCleanup:    make(chan struct{}),
	}

	if fg.Enabled() {
		go fg.cleanup()
	}

	return fg
}

// Enabled reports whether the floodgate limits anything.
func (fg *Floodgate) Enabled() bool {
	return fg.limitPerMinute > 0
}

// Stop ends the background cleanup. It is safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stopCleanup) })
}

// Allow records a request from listenerID and reports whether it is within the limit. Rejected
// requests do not count against the window.
func (fg *Floodgate) Allow(listenerID string) bool {
	if !fg.Enabled() {
		return true
	}

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	now := fg.now()
	entry, exists := fg.entries[listenerID]
	if !exists {
		entry = &listenerEntry{timestamps: make([]time.Time, 0, fg.limitPerMinute)}
		fg.entries[listenerID] = entry
	}
	entry.lastSeen = now
	entry.prune(now.Add(-windowDuration))

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// RetryAfter returns how long until listenerID may be admitted again, or zero if it may be now.
func (fg *Floodgate) RetryAfter(listenerID string) time.Duration {
	if !fg.Enabled() {
		return 0
	}

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[listenerID]
	if !exists {
		return 0
	}

	now := fg.now()
	entry.prune(now.Add(-windowDuration))
	if len(entry.timestamps) < fg.limitPerMinute {
		return 0
	}
	return entry.timestamps[0].Add(windowDuration).Sub(now)
}

func (e *listenerEntry) prune(windowStart time.Time) {
	valid := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	e.timestamps = valid
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

// performCleanup forgets listeners idle for longer than idleTimeout.
func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for listenerID, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, listenerID)
		}
	}
}

// GetStats returns a snapshot for debugging.
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveListeners: len(fg.entries),
		LimitPerMinute:  fg.limitPerMinute,
		WindowSeconds:   int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics.
type Stats struct {
	ActiveListeners int `json:"active_listeners"`
	LimitPerMinute  int `json:"limit_per_minute"`
	WindowSeconds   int `json:"window_seconds"`
}
