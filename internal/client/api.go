package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"portal-chat/internal/models"
)

// API is the persistent store boundary the chat core writes to and reads
// from. It is satisfied by APIClient and mocked in tests.
type API interface {
	Peers(ctx context.Context) ([]models.Profile, error)
	History(ctx context.Context, peerID string) ([]models.Message, error)
	Send(ctx context.Context, peerID, content, attachmentPath string) (models.Message, error)
	Edit(ctx context.Context, peerID, messageID, content string) (models.Message, error)
	Delete(ctx context.Context, peerID, messageID string) error
	RecountUnread(ctx context.Context, since map[string]time.Time) (map[string]int, error)
	SignAttachment(ctx context.Context, path string) (string, error)
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// APIClient talks to the portal chat service over HTTP.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
	log        *logrus.Logger
}

var _ API = (*APIClient)(nil)

// NewAPIClient builds a client. token supplies the current bearer token on
// every call so an identity change needs no client rebuild.
func NewAPIClient(baseURL string, token func() string, log *logrus.Logger) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
		log:        log,
	}
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.message)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &statusError{code: resp.StatusCode, message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Peers fetches the peer directory.
func (c *APIClient) Peers(ctx context.Context) ([]models.Profile, error) {
	var resp struct {
		Peers []models.Profile `json:"peers"`
	}
	if err := c.do(ctx, http.MethodGet, "/peers", nil, &resp); err != nil {
		return nil, mapError(err, ErrPersistence)
	}
	return resp.Peers, nil
}

// History fetches the ordered conversation with a peer.
func (c *APIClient) History(ctx context.Context, peerID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/"+peerID, nil, &resp); err != nil {
		return nil, mapError(err, ErrPersistence)
	}
	return resp.Messages, nil
}

// Send creates a message addressed to the peer.
func (c *APIClient) Send(ctx context.Context, peerID, content, attachmentPath string) (models.Message, error) {
	body := map[string]string{"content": content, "attachment_path": attachmentPath}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages/"+peerID, body, &msg); err != nil {
		return models.Message{}, mapError(err, ErrPersistence)
	}
	return msg, nil
}

// Edit updates the content of a message the caller sent. A sender predicate
// miss at the store comes back as ErrPersistence.
func (c *APIClient) Edit(ctx context.Context, peerID, messageID, content string) (models.Message, error) {
	body := map[string]string{"content": content}
	var msg models.Message
	if err := c.do(ctx, http.MethodPut, "/messages/"+peerID+"/"+messageID, body, &msg); err != nil {
		return models.Message{}, mapError(err, ErrPersistence)
	}
	return msg, nil
}

// Delete removes a message the caller sent.
func (c *APIClient) Delete(ctx context.Context, peerID, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, "/messages/"+peerID+"/"+messageID, nil, nil); err != nil {
		return mapError(err, ErrPersistence)
	}
	return nil
}

// RecountUnread asks the store for authoritative inbound counts per peer.
func (c *APIClient) RecountUnread(ctx context.Context, since map[string]time.Time) (map[string]int, error) {
	body := map[string]interface{}{"since": since}
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.do(ctx, http.MethodPost, "/unread/recount", body, &resp); err != nil {
		return nil, mapError(err, ErrPersistence)
	}
	return resp.Counts, nil
}

// SignAttachment swaps an attachment path for a time-limited URL.
func (c *APIClient) SignAttachment(ctx context.Context, path string) (string, error) {
	body := map[string]string{"path": path}
	var resp struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/attachments/sign", body, &resp); err != nil {
		return "", mapError(err, ErrStorage)
	}
	return resp.SignedURL, nil
}

// Upload streams a file into the private store and returns its object path.
func (c *APIClient) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attachments", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: upload status %d", ErrStorage, resp.StatusCode)
	}

	var out struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return out.Path, nil
}

// mapError folds an HTTP status into the client error taxonomy. fallback
// names the category a non-auth, non-validation failure belongs to.
func mapError(err error, fallback error) error {
	if se, ok := err.(*statusError); ok {
		switch se.code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuth, se.message)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrValidation, se.message)
		default:
			return fmt.Errorf("%w: %s", fallback, se.Error())
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
