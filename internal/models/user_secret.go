package models

import "time"

// UserSecret stores a user's TOTP shared secret and the watermark of the last
// accepted persisting verification. At most one row exists per user; the
// secret column holds the AES-GCM encrypted base32 value, never plaintext.
//
// LastAccess only advances forward in time and only when a submitted code is
// accepted with persistence requested. The row is removed by the database
// when the owning user is deleted (cascade).
type UserSecret struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret     string     `gorm:"not null" json:"-"`
	LastAccess *time.Time `json:"last_access"`
}
