package client

import (
	"sync"
	"time"
)

// UnreadTracker counts inbound messages per peer accumulated since that
// peer's conversation was last opened. Counters live only in this process
// and start from zero each session. The reset instant per peer is kept so
// counters can be reconciled against the store after a feed outage.
type UnreadTracker struct {
	mu       sync.Mutex
	counts   map[string]int
	resetAt  map[string]time.Time
	baseline time.Time
	now      func() time.Time
}

// NewUnreadTracker starts all counters at zero, with the session start as
// the recount baseline for peers never opened.
func NewUnreadTracker() *UnreadTracker {
	return newUnreadTrackerAt(time.Now)
}

func newUnreadTrackerAt(now func() time.Time) *UnreadTracker {
	return &UnreadTracker{
		counts:   make(map[string]int),
		resetAt:  make(map[string]time.Time),
		baseline: now(),
		now:      now,
	}
}

// Increment adds one inbound message for the peer.
func (t *UnreadTracker) Increment(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[peerID]++
}

// Reset zeroes the counter for the peer and records the instant.
func (t *UnreadTracker) Reset(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[peerID] = 0
	t.resetAt[peerID] = t.now()
}

// Get returns the current count for the peer.
func (t *UnreadTracker) Get(peerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[peerID]
}

// ResetTime returns when the peer's counter was last reset, falling back to
// the session baseline.
func (t *UnreadTracker) ResetTime(peerID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.resetAt[peerID]; ok {
		return at
	}
	return t.baseline
}

// SetCounts overwrites counters with authoritative values from a recount.
func (t *UnreadTracker) SetCounts(counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for peerID, count := range counts {
		t.counts[peerID] = count
	}
}
