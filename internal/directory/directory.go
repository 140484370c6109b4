package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/openportal/twofa/internal/models"
	apperrors "github.com/openportal/twofa/pkg/errors"
)

// Finder resolves user identifiers against the host directory. Callers may
// pass a username, an email address, or the stable internal id depending on
// context; all three resolve to the same user record.
type Finder interface {
	Find(ctx context.Context, identifier string) (*models.User, error)
}

// Directory is the database-backed Finder over the host's user table.
type Directory struct {
	db *gorm.DB
}

// New constructs a Directory backed by the provided database.
func New(db *gorm.DB) (*Directory, error) {
	if db == nil {
		return nil, errors.New("directory: db is required")
	}
	return &Directory{db: db}, nil
}

// Find resolves identifier to a user record. It returns ErrUserNotFound when
// no user matches; the identifier is matched against id, username, and email.
func (d *Directory) Find(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperrors.ErrUserNotFound
	}

	var user models.User
	err := d.db.WithContext(ctx).
		Where("id = ? OR username = ? OR email = ?", identifier, identifier, strings.ToLower(identifier)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("directory: find user: %w", err)
	}

	return &user, nil
}
