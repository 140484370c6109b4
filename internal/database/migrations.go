package database

import (
	"gorm.io/gorm"

	"github.com/openportal/twofa/internal/models"
)

// AutoMigrate creates or updates the database schema. Users are migrated
// first so the user_secrets foreign key (with cascade delete) can attach.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserSecret{},
	)
}
