package models

// Profile is a read-only peer directory entry.
type Profile struct {
	ID         string `db:"id" json:"id"`
	FullName   string `db:"full_name" json:"full_name"`
	AvatarPath string `db:"avatar_path" json:"avatar_path,omitempty"`
}
