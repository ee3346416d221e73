package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"portal-chat/internal/models"
	"portal-chat/internal/observability"
)

// FeedHub maintains the live change feed connections, keyed by identity.
// Every event about a message is delivered to the rooms of both its sender
// and its receiver; the filtering therefore happens here, server-side, and
// subscribers receive only rows they are a party to.
type FeedHub struct {
	rooms map[string]map[*websocket.Conn]ConnInfo
	mu    sync.RWMutex
	log   *logrus.Logger
}

// NewFeedHub creates an empty hub.
func NewFeedHub(log *logrus.Logger) *FeedHub {
	return &FeedHub{
		rooms: make(map[string]map[*websocket.Conn]ConnInfo),
		log:   log,
	}
}

// AddClient registers a websocket connection for an identity.
func (h *FeedHub) AddClient(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rooms[userID][conn] = info
}

// RemoveClient removes a connection for an identity.
func (h *FeedHub) RemoveClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// PublishEvent delivers a feed event to every live subscriber of the
// identity pair of the event row.
func (h *FeedHub) PublishEvent(event models.FeedEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("feed event marshal failed")
		return
	}

	observability.IncFeedEvent(event.Kind)

	targets := []string{event.Row.SenderID}
	if event.Row.ReceiverID != event.Row.SenderID {
		targets = append(targets, event.Row.ReceiverID)
	}
	for _, userID := range targets {
		h.send(userID, payload)
	}
}

func (h *FeedHub) send(userID string, payload []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[userID]))
	for conn := range h.rooms[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.WithError(err).Warn("feed write error")
			conn.Close()
			h.publishConnError(userID, conn, err)
			h.RemoveClient(userID, conn)
		}
	}
}

func (h *FeedHub) publishConnError(userID string, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(userID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"conn": map[string]interface{}{
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID,
			"ip":      info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "feed.lifecycle", observability.EventEnvelope{
		Stream:  "feed",
		Event:   "feed_error",
		Payload: payload,
	}, headers)
}

func (h *FeedHub) getConnInfo(userID string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.rooms[userID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
