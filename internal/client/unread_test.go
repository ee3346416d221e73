package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnreadIncrementAndReset(t *testing.T) {
	tracker := NewUnreadTracker()

	assert.Equal(t, 0, tracker.Get("bob"))

	tracker.Increment("bob")
	tracker.Increment("bob")
	tracker.Increment("carol")
	assert.Equal(t, 2, tracker.Get("bob"))
	assert.Equal(t, 1, tracker.Get("carol"))

	tracker.Reset("bob")
	assert.Equal(t, 0, tracker.Get("bob"))
	assert.Equal(t, 1, tracker.Get("carol"))
}

func TestUnreadResetTime(t *testing.T) {
	current := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	tracker := newUnreadTrackerAt(func() time.Time { return current })

	// Never-opened peers recount from the session baseline.
	assert.Equal(t, current, tracker.ResetTime("bob"))

	current = current.Add(5 * time.Minute)
	tracker.Reset("bob")
	assert.Equal(t, current, tracker.ResetTime("bob"))
}

func TestUnreadSetCounts(t *testing.T) {
	tracker := NewUnreadTracker()
	tracker.Increment("bob")

	tracker.SetCounts(map[string]int{"bob": 5, "carol": 2})
	assert.Equal(t, 5, tracker.Get("bob"))
	assert.Equal(t, 2, tracker.Get("carol"))
}
