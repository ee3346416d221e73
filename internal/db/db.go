package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log *logrus.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            id TEXT PRIMARY KEY,
            full_name TEXT NOT NULL,
            avatar_path TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            expires_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            sender_id TEXT NOT NULL REFERENCES profiles(id),
            receiver_id TEXT NOT NULL REFERENCES profiles(id),
            content TEXT NOT NULL DEFAULT '',
            attachment_path TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (content <> '' OR attachment_path <> '')
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair
            ON messages (sender_id, receiver_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_inbound
            ON messages (receiver_id, created_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
