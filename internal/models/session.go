package models

import "time"

// Session maps a bearer token to an authenticated portal member.
type Session struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
