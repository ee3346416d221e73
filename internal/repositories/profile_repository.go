package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"portal-chat/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository reads the peer directory.
type ProfileRepository interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// ListProfiles returns all directory entries.
func (r *ProfileRepo) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	profiles := []models.Profile{}
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT id, full_name, avatar_path FROM profiles ORDER BY full_name ASC`)
	return profiles, err
}

// GetProfile fetches a single directory entry.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile,
		`SELECT id, full_name, avatar_path FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}
