package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portal-chat/internal/models"
	"portal-chat/internal/observability"
	"portal-chat/internal/repositories"
	"portal-chat/internal/telemetry"
	"portal-chat/internal/ws"
)

// ChatHandler manages the direct messaging endpoints.
type ChatHandler struct {
	messageRepo repositories.MessageRepository
	profileRepo repositories.ProfileRepository
	hub         *ws.FeedHub
	audit       *telemetry.AuditEmitter
	log         *logrus.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messageRepo repositories.MessageRepository, profileRepo repositories.ProfileRepository, hub *ws.FeedHub, audit *telemetry.AuditEmitter, log *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		messageRepo: messageRepo,
		profileRepo: profileRepo,
		hub:         hub,
		audit:       audit,
		log:         log,
	}
}

// ListPeers returns the peer directory.
func (h *ChatHandler) ListPeers(c *gin.Context) {
	profiles, err := h.profileRepo.ListProfiles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load peers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": profiles})
}

// GetConversation returns the message history between the caller and a peer,
// ordered by creation time then id.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userID := c.GetString("userID")
	peerID := c.Param("peer_id")

	if _, err := h.profileRepo.GetProfile(c.Request.Context(), peerID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "unknown peer"})
		return
	}

	msgs, err := h.messageRepo.GetConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a new message and pushes the insert event onto the feed.
// The response is the persisted row; clients are expected to wait for the
// feed event rather than echo the row into their local view.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := c.GetString("userID")
	peerID := c.Param("peer_id")

	var req struct {
		Content        string `json:"content"`
		AttachmentPath string `json:"attachment_path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && req.AttachmentPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs content or an attachment"})
		return
	}
	if peerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), userID, peerID, req.Content, req.AttachmentPath)
	if err != nil {
		h.emitAudit(c, "message_send", "", peerID, "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.PublishEvent(models.FeedEvent{Kind: models.FeedInsert, Row: msg})
	h.emitAudit(c, "message_send", msg.ID, peerID, "ok")
	c.JSON(http.StatusCreated, msg)
}

// EditMessage changes the content of a message the caller sent. The sender
// predicate lives in the UPDATE statement; a miss reads as not found.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	userID := c.GetString("userID")
	messageID := c.Param("message_id")

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		h.emitAudit(c, "message_edit", messageID, "", "error")
		c.JSON(status, gin.H{"error": "could not edit message"})
		return
	}

	h.hub.PublishEvent(models.FeedEvent{Kind: models.FeedUpdate, Row: msg})
	h.emitAudit(c, "message_edit", messageID, "", "ok")
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes a message the caller sent and notifies both sides.
// The feed event is built from the deleted row, never from the URL, so the
// stored receiver always observes the delete regardless of the peer id the
// caller named.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetString("userID")
	peerID := c.Param("peer_id")
	messageID := c.Param("message_id")

	msg, err := h.messageRepo.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		h.emitAudit(c, "message_delete", messageID, peerID, "error")
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.hub.PublishEvent(models.FeedEvent{
		Kind: models.FeedDelete,
		Row:  models.Message{ID: msg.ID, SenderID: msg.SenderID, ReceiverID: msg.ReceiverID},
	})
	h.emitAudit(c, "message_delete", messageID, msg.ReceiverID, "ok")
	c.Status(http.StatusNoContent)
}

// RecountUnread returns authoritative inbound message counts per peer since
// the given instants. Clients call it after a feed reconnect, because events
// dropped during the outage would otherwise leave counters behind.
func (h *ChatHandler) RecountUnread(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Since map[string]time.Time `json:"since" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	counts := make(map[string]int, len(req.Since))
	for peerID, since := range req.Since {
		count, err := h.messageRepo.CountInboundSince(c.Request.Context(), userID, peerID, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count messages"})
			return
		}
		counts[peerID] = count
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *ChatHandler) emitAudit(c *gin.Context, action, messageID, peerID, outcome string) {
	h.audit.Emit(c.Request.Context(), c.GetString("userID"), observability.RequestIDFromRequest(c.Request), telemetry.AuditPayload{
		Action:    action,
		MessageID: messageID,
		PeerID:    peerID,
		Outcome:   outcome,
	})
}
