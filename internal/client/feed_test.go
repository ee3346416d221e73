package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-chat/internal/models"
)

type feedServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	dials     int
	dialTimes []time.Time
	tokens    []string
	conns     chan *websocket.Conn
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{conns: make(chan *websocket.Conn, 4)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.dials++
		fs.dialTimes = append(fs.dialTimes, time.Now())
		fs.tokens = append(fs.tokens, r.Header.Get("Authorization"))
		fs.mu.Unlock()

		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *feedServer) dialCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dials
}

func (fs *feedServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubscriberDeliversEvents(t *testing.T) {
	fs := newFeedServer(t)
	sub := NewSubscriber(SubscriberConfig{
		URL:            fs.wsURL(),
		ReconnectDelay: 10 * time.Millisecond,
		Log:            testLogger(),
	})
	defer sub.Unsubscribe()

	var mu sync.Mutex
	var events []models.FeedEvent
	sub.Subscribe("secret", func(ev models.FeedEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, nil)

	conn := fs.waitConn(t)
	payload, err := json.Marshal(models.FeedEvent{
		Kind: models.FeedInsert,
		Row:  models.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, "feed event was not delivered")

	mu.Lock()
	assert.Equal(t, models.FeedInsert, events[0].Kind)
	assert.Equal(t, "m1", events[0].Row.ID)
	mu.Unlock()

	fs.mu.Lock()
	assert.Equal(t, []string{"Bearer secret"}, fs.tokens)
	fs.mu.Unlock()
}

func TestSubscriberReconnectsAfterServerClose(t *testing.T) {
	const delay = 100 * time.Millisecond
	fs := newFeedServer(t)
	sub := NewSubscriber(SubscriberConfig{
		URL:            fs.wsURL(),
		ReconnectDelay: delay,
		Log:            testLogger(),
	})
	defer sub.Unsubscribe()

	var mu sync.Mutex
	var states []FeedState
	var lostAt time.Time
	sub.Subscribe("secret", func(models.FeedEvent) {}, func(st FeedState) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
		if st == StateClosed && lostAt.IsZero() {
			lostAt = time.Now()
		}
	})

	conn := fs.waitConn(t)
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, closing))
	conn.Close()

	// The subscriber must come back on its own after the fixed delay.
	fs.waitConn(t)
	waitFor(t, func() bool { return sub.State() == StateActive }, "feed never regained")

	// Exactly one resubscribe attempt, scheduled no earlier than the
	// fixed delay and not far after it.
	assert.Equal(t, 2, fs.dialCount())

	mu.Lock()
	assert.Contains(t, states, StateClosed)
	require.False(t, lostAt.IsZero(), "loss transition never observed")
	loss := lostAt
	mu.Unlock()

	fs.mu.Lock()
	require.Len(t, fs.dialTimes, 2)
	redial := fs.dialTimes[1]
	fs.mu.Unlock()

	gap := redial.Sub(loss)
	assert.GreaterOrEqual(t, gap, delay)
	assert.Less(t, gap, delay+500*time.Millisecond)
}

func TestSubscriberUnsubscribeIsTerminal(t *testing.T) {
	fs := newFeedServer(t)
	sub := NewSubscriber(SubscriberConfig{
		URL:            fs.wsURL(),
		ReconnectDelay: 10 * time.Millisecond,
		Log:            testLogger(),
	})

	sub.Subscribe("secret", func(models.FeedEvent) {}, nil)
	fs.waitConn(t)
	waitFor(t, func() bool { return sub.State() == StateActive }, "feed never became active")

	sub.Unsubscribe()
	assert.Equal(t, StateUnsubscribed, sub.State())

	dials := fs.dialCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dials, fs.dialCount(), "unsubscribed feed must not redial")
}

func TestSubscriberResubscribeReplacesOldSubscription(t *testing.T) {
	fs := newFeedServer(t)
	sub := NewSubscriber(SubscriberConfig{
		URL:            fs.wsURL(),
		ReconnectDelay: 10 * time.Millisecond,
		Log:            testLogger(),
	})
	defer sub.Unsubscribe()

	sub.Subscribe("first", func(models.FeedEvent) {}, nil)
	fs.waitConn(t)
	waitFor(t, func() bool { return sub.State() == StateActive }, "first subscription never active")

	sub.Subscribe("second", func(models.FeedEvent) {}, nil)
	fs.waitConn(t)
	waitFor(t, func() bool { return sub.State() == StateActive }, "second subscription never active")

	fs.mu.Lock()
	tokens := append([]string(nil), fs.tokens...)
	fs.mu.Unlock()
	require.GreaterOrEqual(t, len(tokens), 2)
	assert.Equal(t, "Bearer second", tokens[len(tokens)-1])
}
