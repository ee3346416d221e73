package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"portal-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID, content, attachmentPath string) (models.Message, error)
	GetConversation(ctx context.Context, userID, peerID string) ([]models.Message, error)
	EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error)
	CountInboundSince(ctx context.Context, receiverID, senderID string, since time.Time) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, receiver_id, content, attachment_path, created_at`

// CreateMessage stores a message and returns the persisted row.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID, content, attachmentPath string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, content, attachment_path)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING `+messageColumns,
		uuid.NewString(), senderID, receiverID, content, attachmentPath).
		StructScan(&msg)
	return msg, err
}

// GetConversation returns every message exchanged between the two users,
// ordered by creation time with the id as tie breaker.
func (r *MessageRepo) GetConversation(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userID, peerID)
	return msgs, err
}

// EditMessage updates the content of a message. The sender predicate is the
// authorization check: editing someone else's message affects zero rows and
// surfaces ErrMessageNotFound.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$3 WHERE id=$1 AND sender_id=$2
         RETURNING `+messageColumns,
		messageID, senderID, content).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessage removes a message, again gated by the sender predicate. The
// deleted row comes back so feed fan-out can use its stored identity pair
// rather than anything the caller claims.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM messages WHERE id=$1 AND sender_id=$2
         RETURNING `+messageColumns,
		messageID, senderID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// CountInboundSince counts messages from senderID to receiverID created
// strictly after the given instant. Used to reconcile unread counters after a
// feed reconnect.
func (r *MessageRepo) CountInboundSince(ctx context.Context, receiverID, senderID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND sender_id=$2 AND created_at > $3`,
		receiverID, senderID, since)
	return count, err
}
