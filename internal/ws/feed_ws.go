package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"portal-chat/internal/observability"
	"portal-chat/internal/repositories"
)

// FeedWebSocketHandler upgrades authenticated clients onto the change feed.
type FeedWebSocketHandler struct {
	hub         *FeedHub
	sessionRepo repositories.SessionRepository
	log         *logrus.Logger
}

// NewFeedWebSocketHandler constructs a FeedWebSocketHandler.
func NewFeedWebSocketHandler(hub *FeedHub, sessionRepo repositories.SessionRepository, log *logrus.Logger) *FeedWebSocketHandler {
	return &FeedWebSocketHandler{hub: hub, sessionRepo: sessionRepo, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client on its identity's
// feed room. The token may come from the Authorization header or, for
// browser websocket clients, the token query parameter.
func (h *FeedWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("portal-chat/ws").Start(c.Request.Context(), "feed.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	session, err := h.sessionRepo.Lookup(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      session.UserID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(session.UserID, conn, info)
	observability.IncFeedActive()
	h.publishLifecycle(c, info, "feed_connect", "")

	go h.readLoop(c, conn, info)
}

// readLoop drains the connection until the peer goes away, then removes the
// client. The feed is one-directional; anything the client writes is ignored.
func (h *FeedWebSocketHandler) readLoop(c *gin.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(info.UserID, conn)
		observability.DecFeedActive()
		h.publishLifecycle(c, info, "feed_disconnect", closeReason)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.publishLifecycle(c, info, "feed_error", closeReason)
			}
			return
		}
	}
}

func (h *FeedWebSocketHandler) publishLifecycle(c *gin.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(c.Request.Context(), "feed.lifecycle", observability.EventEnvelope{
		Stream: "feed",
		Event:  event,
		Payload: map[string]interface{}{
			"conn": map[string]interface{}{
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id": info.UserID,
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return c.Query("token")
}
