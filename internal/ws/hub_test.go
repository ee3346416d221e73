package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-chat/internal/models"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewFeedHub(newTestLogger())

	hub.AddClient("alice", nil, ConnInfo{})
	if len(hub.rooms) != 1 {
		t.Fatalf("expected room to be created")
	}

	hub.RemoveClient("alice", nil)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected room to be removed")
	}
}

// dialTestClient registers a real websocket connection on the hub for the
// given identity and returns the client side.
func dialTestClient(t *testing.T, hub *FeedHub, userID string) *websocket.Conn {
	t.Helper()

	connected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.AddClient(userID, conn, ConnInfo{UserID: userID, ConnectedAt: time.Now()})
		close(connected)
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })
	<-connected
	return client
}

func readEvent(t *testing.T, conn *websocket.Conn) models.FeedEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var event models.FeedEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestPublishEventReachesBothParties(t *testing.T) {
	hub := NewFeedHub(newTestLogger())

	alice := dialTestClient(t, hub, "alice")
	bob := dialTestClient(t, hub, "bob")
	carol := dialTestClient(t, hub, "carol")

	hub.PublishEvent(models.FeedEvent{
		Kind: models.FeedInsert,
		Row:  models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi"},
	})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		assert.Equal(t, models.FeedInsert, event.Kind)
		assert.Equal(t, "m1", event.Row.ID)
	}

	// Carol is not a party to the conversation and must see nothing.
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err)
}

func TestPublishDeleteEvent(t *testing.T) {
	hub := NewFeedHub(newTestLogger())
	bob := dialTestClient(t, hub, "bob")

	hub.PublishEvent(models.FeedEvent{
		Kind: models.FeedDelete,
		Row:  models.Message{ID: "m9", SenderID: "alice", ReceiverID: "bob"},
	})

	event := readEvent(t, bob)
	assert.Equal(t, models.FeedDelete, event.Kind)
	assert.Equal(t, "m9", event.Row.ID)
}
