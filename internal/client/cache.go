package client

import (
	"sort"

	"portal-chat/internal/models"
)

// Entry is a message enriched with its resolved attachment URL.
type Entry struct {
	models.Message
	SignedURL string `json:"signed_url,omitempty"`
}

// MessageCache is the ordered in-memory view of the open conversation.
// Order is (created_at, id) ascending, matching the history query, so a
// feed insert lands in the same position a reload would give it.
type MessageCache struct {
	entries []Entry
}

// NewMessageCache creates an empty cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{}
}

// Replace swaps the whole view, e.g. after a conversation switch.
func (c *MessageCache) Replace(entries []Entry) {
	c.entries = append([]Entry(nil), entries...)
}

// Insert places the entry at its ordered position. A duplicate id is
// ignored; the feed can replay an insert the history fetch already covered.
func (c *MessageCache) Insert(entry Entry) {
	for _, e := range c.entries {
		if e.ID == entry.ID {
			return
		}
	}
	i := sort.Search(len(c.entries), func(i int) bool {
		e := c.entries[i]
		if !e.CreatedAt.Equal(entry.CreatedAt) {
			return e.CreatedAt.After(entry.CreatedAt)
		}
		return e.ID > entry.ID
	})
	c.entries = append(c.entries, Entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = entry
}

// Update replaces the mutable fields of a cached message. Unknown ids are a
// no-op; an update can outrun the insert it follows.
func (c *MessageCache) Update(entry Entry) {
	for i, e := range c.entries {
		if e.ID == entry.ID {
			e.Content = entry.Content
			e.AttachmentPath = entry.AttachmentPath
			e.SignedURL = entry.SignedURL
			c.entries[i] = e
			return
		}
	}
}

// Delete removes a message by id. Unknown ids are a no-op.
func (c *MessageCache) Delete(messageID string) {
	for i, e := range c.entries {
		if e.ID == messageID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Clear empties the view.
func (c *MessageCache) Clear() {
	c.entries = nil
}

// Len reports the number of cached messages.
func (c *MessageCache) Len() int {
	return len(c.entries)
}

// Snapshot returns a copy of the current view.
func (c *MessageCache) Snapshot() []Entry {
	return append([]Entry(nil), c.entries...)
}
