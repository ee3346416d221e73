package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"portal-chat/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository resolves bearer tokens to identities.
type SessionRepository interface {
	Lookup(ctx context.Context, token string) (models.Session, error)
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Lookup returns the session for a token, rejecting expired ones.
func (r *SessionRepo) Lookup(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session,
		`SELECT token, user_id, expires_at FROM sessions WHERE token=$1 AND expires_at > NOW()`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}
