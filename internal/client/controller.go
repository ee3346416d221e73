package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"portal-chat/internal/models"
)

// FeedSource is the change feed boundary the controller subscribes through.
type FeedSource interface {
	Subscribe(token string, onEvent FeedHandler, onStatus StatusHandler)
	Unsubscribe()
}

// Controller orchestrates the chat core: conversation selection, writes,
// and reconciling the local view with the change feed. The local view is
// never mutated on a write; the feed event confirming persistence is the
// only path by which it updates, for the sender's own messages included.
type Controller struct {
	api        API
	feed       FeedSource
	resolver   *AttachmentResolver
	unread     *UnreadTracker
	dispatcher *Dispatcher
	sessions   *SessionManager
	log        *logrus.Logger

	mu         sync.Mutex
	cache      *MessageCache
	peers      map[string]models.Profile
	openPeer   string
	generation uint64
	dropped    bool
	// pending is non-nil while a selection's history fetch is in flight;
	// open-conversation events land here and replay after Replace.
	pending []models.FeedEvent

	unsubscribeAuth func()
}

// NewController wires the chat core together.
func NewController(api API, feed FeedSource, resolver *AttachmentResolver, unread *UnreadTracker, dispatcher *Dispatcher, sessions *SessionManager, log *logrus.Logger) *Controller {
	return &Controller{
		api:        api,
		feed:       feed,
		resolver:   resolver,
		unread:     unread,
		dispatcher: dispatcher,
		sessions:   sessions,
		log:        log,
		cache:      NewMessageCache(),
		peers:      make(map[string]models.Profile),
	}
}

// Start loads the peer directory and acquires the feed subscription for the
// current identity. It also follows auth state changes, releasing and
// re-acquiring the subscription when the identity changes.
func (c *Controller) Start(ctx context.Context) error {
	session := c.sessions.Session()
	if session == nil {
		return fmt.Errorf("%w: no session at startup", ErrAuth)
	}

	peers, err := c.api.Peers(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, p := range peers {
		c.peers[p.ID] = p
	}
	c.mu.Unlock()

	c.unsubscribeAuth = c.sessions.OnAuthStateChange(c.onAuthChange)
	c.feed.Subscribe(session.Token, c.OnFeedEvent, c.onFeedStatus)
	return nil
}

// Close releases the feed subscription and stops following auth changes.
func (c *Controller) Close() {
	if c.unsubscribeAuth != nil {
		c.unsubscribeAuth()
		c.unsubscribeAuth = nil
	}
	c.feed.Unsubscribe()
}

// onAuthChange tears down per-identity state. The old subscription is
// released before a new one opens; local counters and the message view do
// not survive an identity change.
func (c *Controller) onAuthChange(session *Session) {
	c.feed.Unsubscribe()

	c.mu.Lock()
	c.cache.Clear()
	c.openPeer = ""
	c.generation++
	c.pending = nil
	c.mu.Unlock()

	if session != nil {
		c.feed.Subscribe(session.Token, c.OnFeedEvent, c.onFeedStatus)
	}
}

// SelectConversation opens the conversation with a peer: loads its history,
// resolves attachments, resets the peer's unread counter and replaces the
// view. A fetch that was overtaken by a newer selection is discarded. Feed
// events for the conversation arriving while the history is in flight are
// buffered and replayed after the view is replaced, so Replace cannot wipe
// them.
func (c *Controller) SelectConversation(ctx context.Context, peerID string) error {
	if c.sessions.Session() == nil {
		return fmt.Errorf("%w: select conversation", ErrAuth)
	}

	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.openPeer = peerID
	c.pending = []models.FeedEvent{}
	c.mu.Unlock()

	msgs, err := c.api.History(ctx, peerID)
	if err != nil {
		c.mu.Lock()
		if c.generation == generation {
			c.pending = nil
		}
		c.mu.Unlock()
		return err
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{
			Message:   msg,
			SignedURL: c.resolver.Resolve(ctx, msg.AttachmentPath),
		})
	}

	c.mu.Lock()
	if c.generation != generation {
		// A newer selection started while this history was in flight.
		c.mu.Unlock()
		return nil
	}
	c.cache.Replace(entries)
	c.unread.Reset(peerID)
	buffered := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, event := range buffered {
		c.OnFeedEvent(event)
	}
	return nil
}

// Send creates a message for the open conversation. The view is not touched
// here; the insert comes back through the feed.
func (c *Controller) Send(ctx context.Context, text, attachmentPath string) error {
	session := c.sessions.Session()
	if session == nil {
		return fmt.Errorf("%w: send", ErrAuth)
	}
	if text == "" && attachmentPath == "" {
		return fmt.Errorf("%w: message needs content or an attachment", ErrValidation)
	}

	c.mu.Lock()
	peerID := c.openPeer
	c.mu.Unlock()
	if peerID == "" {
		return ErrNoConversation
	}

	_, err := c.api.Send(ctx, peerID, text, attachmentPath)
	return err
}

// Edit changes the content of a message the user sent. Authorization is the
// store's sender predicate; a miss surfaces as ErrPersistence.
func (c *Controller) Edit(ctx context.Context, messageID, newText string) error {
	if c.sessions.Session() == nil {
		return fmt.Errorf("%w: edit", ErrAuth)
	}

	c.mu.Lock()
	peerID := c.openPeer
	c.mu.Unlock()
	if peerID == "" {
		return ErrNoConversation
	}

	_, err := c.api.Edit(ctx, peerID, messageID, newText)
	return err
}

// Delete removes a message the user sent.
func (c *Controller) Delete(ctx context.Context, messageID string) error {
	if c.sessions.Session() == nil {
		return fmt.Errorf("%w: delete", ErrAuth)
	}

	c.mu.Lock()
	peerID := c.openPeer
	c.mu.Unlock()
	if peerID == "" {
		return ErrNoConversation
	}

	return c.api.Delete(ctx, peerID, messageID)
}

// OnFeedEvent routes a change feed event: into the open conversation's view
// when the row belongs to it, otherwise into the unread counter and the
// notification path for inbound inserts.
func (c *Controller) OnFeedEvent(event models.FeedEvent) {
	self := c.sessions.User()
	if self == "" {
		return
	}

	c.mu.Lock()
	openPeer := c.openPeer
	inOpen := openPeer != "" && event.Row.InConversation(self, openPeer)
	if inOpen && c.pending != nil {
		c.pending = append(c.pending, event)
		c.mu.Unlock()
		return
	}
	if inOpen {
		switch event.Kind {
		case models.FeedInsert:
			c.mu.Unlock()
			entry := Entry{
				Message:   event.Row,
				SignedURL: c.resolver.Resolve(context.Background(), event.Row.AttachmentPath),
			}
			c.mu.Lock()
			switch {
			case c.openPeer != openPeer:
				// Selection moved on while resolving; drop.
			case c.pending != nil:
				c.pending = append(c.pending, event)
			default:
				c.cache.Insert(entry)
			}
		case models.FeedUpdate:
			c.cache.Update(Entry{Message: event.Row})
		case models.FeedDelete:
			c.cache.Delete(event.Row.ID)
		}
	}
	profile := c.peers[event.Row.SenderID]
	c.mu.Unlock()

	if event.Kind == models.FeedInsert && event.Row.ReceiverID == self && event.Row.SenderID != openPeer {
		c.unread.Increment(event.Row.SenderID)

		name := profile.FullName
		if name == "" {
			name = "Unknown"
		}
		c.dispatcher.Dispatch(name, event.Row.Content, event.Row.AttachmentPath, profile.AvatarPath)
	}
}

// Unread reports the current unread count for a peer.
func (c *Controller) Unread(peerID string) int {
	return c.unread.Get(peerID)
}

// Messages returns the current view of the open conversation.
func (c *Controller) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Snapshot()
}

// onFeedStatus watches subscription transitions. After an outage, regaining
// the feed triggers an authoritative unread recount: events dropped while
// disconnected would otherwise leave counters behind for good.
func (c *Controller) onFeedStatus(state FeedState) {
	switch state {
	case StateClosed, StateError, StateTimedOut:
		c.mu.Lock()
		c.dropped = true
		c.mu.Unlock()
	case StateActive:
		c.mu.Lock()
		reconcile := c.dropped
		c.dropped = false
		c.mu.Unlock()
		if reconcile {
			c.reconcileUnread()
		}
	}
}

func (c *Controller) reconcileUnread() {
	self := c.sessions.User()
	if self == "" {
		return
	}

	c.mu.Lock()
	since := make(map[string]time.Time, len(c.peers))
	for peerID := range c.peers {
		if peerID == self || peerID == c.openPeer {
			continue
		}
		since[peerID] = c.unread.ResetTime(peerID)
	}
	c.mu.Unlock()
	if len(since) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	counts, err := c.api.RecountUnread(ctx, since)
	if err != nil {
		c.log.WithError(err).Warn("unread reconciliation failed")
		return
	}
	c.unread.SetCounts(counts)
}
