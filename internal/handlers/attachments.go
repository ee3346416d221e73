package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portal-chat/internal/objstore"
	"portal-chat/internal/observability"
)

// AttachmentHandler manages uploads into the private store and signed URL
// issuance for reading them back.
type AttachmentHandler struct {
	store     objstore.Store
	signer    *objstore.Signer
	signedTTL time.Duration
	log       *logrus.Logger
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(store objstore.Store, signer *objstore.Signer, signedTTL time.Duration, log *logrus.Logger) *AttachmentHandler {
	return &AttachmentHandler{store: store, signer: signer, signedTTL: signedTTL, log: log}
}

// Upload stores a multipart file under {user_id}/{unix_millis}_{filename} and
// returns the object path for use in a subsequent send.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	userID := c.GetString("userID")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	key := objstore.ObjectKey(userID, header.Filename, time.Now())
	if err := h.store.Put(key, file); err != nil {
		h.log.WithError(err).Error("attachment upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"path": key})
}

// Sign issues a time-limited URL for a stored attachment.
func (h *AttachmentHandler) Sign(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Probe existence so callers get a definitive miss instead of a URL
	// that can never be fetched.
	obj, err := h.store.Open(req.Path)
	if err != nil {
		observability.IncSignedURL("miss")
		status := http.StatusInternalServerError
		if errors.Is(err, objstore.ErrObjectNotFound) || errors.Is(err, objstore.ErrInvalidKey) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "object not found"})
		return
	}
	obj.Close()

	url := h.signer.SignedURL(req.Path, h.signedTTL, time.Now())
	observability.IncSignedURL("ok")
	c.JSON(http.StatusOK, gin.H{"signed_url": url, "expires_in": int(h.signedTTL.Seconds())})
}

// Serve streams an object iff the request carries a valid, unexpired
// signature. This is the only read path into the private store.
func (h *AttachmentHandler) Serve(c *gin.Context) {
	key := c.Param("path")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	if err := h.signer.Verify(key, c.Query("exp"), c.Query("sig"), time.Now()); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, objstore.ErrURLExpired) {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	obj, err := h.store.Open(key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, objstore.ErrObjectNotFound) || errors.Is(err, objstore.ErrInvalidKey) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "object not found"})
		return
	}
	defer obj.Close()

	c.Header("Cache-Control", "private, max-age=0")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj); err != nil {
		h.log.WithError(err).Warn("attachment stream interrupted")
	}
}
