package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openportal/twofa/internal/directory"
	"github.com/openportal/twofa/internal/models"
	"github.com/openportal/twofa/pkg/crypto"
)

// Store owns durable access to secret records. Secrets are encrypted with
// AES-256-GCM before they touch the database; every read decrypts into a
// fresh Record value. All writes commit before returning.
type Store struct {
	db            *gorm.DB
	dir           directory.Finder
	encryptionKey []byte
}

// NewStore constructs a Store backed by the provided database and directory.
func NewStore(db *gorm.DB, dir directory.Finder, encryptionKey []byte) (*Store, error) {
	if db == nil {
		return nil, errors.New("challenge: db is required")
	}
	if dir == nil {
		return nil, errors.New("challenge: directory is required")
	}
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("challenge: encryption key must be 16, 24, or 32 bytes (got %d)", len(encryptionKey))
	}

	return &Store{db: db, dir: dir, encryptionKey: encryptionKey}, nil
}

// Get resolves identifier through the directory and loads that user's secret
// record. It returns (nil, nil) when the user exists but was never
// provisioned, and ErrUserNotFound when the identifier does not resolve.
func (s *Store) Get(ctx context.Context, identifier string) (*Record, error) {
	user, err := s.dir.Find(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var row models.UserSecret
	if err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("challenge: load secret: %w", err)
	}

	return s.toRecord(&row)
}

// Upsert creates the user's secret record or replaces its secret wholesale.
// The last_access watermark is left untouched on replacement: the new secret
// invalidates old codes, so the stale watermark is harmless.
func (s *Store) Upsert(ctx context.Context, userID, secret string) (*Record, error) {
	if userID == "" {
		return nil, errors.New("challenge: user id is required")
	}
	if secret == "" {
		return nil, errors.New("challenge: secret is required")
	}

	encrypted, err := crypto.Encrypt([]byte(secret), s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("challenge: encrypt secret: %w", err)
	}

	var row models.UserSecret
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).
			Model(&row).
			Update("secret", encrypted).Error; err != nil {
			return nil, fmt.Errorf("challenge: replace secret: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.UserSecret{UserID: userID, Secret: encrypted}
		if createErr := s.db.WithContext(ctx).Create(&row).Error; createErr != nil {
			if !isUniqueConstraintError(createErr) {
				return nil, fmt.Errorf("challenge: create secret: %w", createErr)
			}
			// Lost a create race; the row exists now, replace its secret.
			if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
				return nil, fmt.Errorf("challenge: reload secret after race: %w", err)
			}
			if err := s.db.WithContext(ctx).Model(&row).Update("secret", encrypted).Error; err != nil {
				return nil, fmt.Errorf("challenge: replace secret: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("challenge: load secret: %w", err)
	}

	row.Secret = encrypted
	return s.toRecord(&row)
}

// RecordSuccess advances the last_access watermark with a compare-and-set
// against the value the record was loaded with. It returns false without
// error when a concurrent verification advanced the watermark first; callers
// must reload the record and re-run their replay check before retrying.
func (s *Store) RecordSuccess(ctx context.Context, rec *Record, at time.Time) (bool, error) {
	if rec == nil || rec.ID == "" {
		return false, errors.New("challenge: record is required")
	}

	at = at.UTC()

	tx := s.db.WithContext(ctx).
		Model(&models.UserSecret{}).
		Where("id = ?", rec.ID)

	if rec.LastAccess == nil {
		tx = tx.Where("last_access IS NULL")
	} else {
		// Watermark only moves forward; the equality check doubles as the
		// forward-only guard because at comes from the caller's clock "now".
		tx = tx.Where("last_access = ?", *rec.LastAccess)
	}

	result := tx.Update("last_access", at)
	if result.Error != nil {
		return false, fmt.Errorf("challenge: record success: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	rec.LastAccess = &at
	return true, nil
}

func (s *Store) toRecord(row *models.UserSecret) (*Record, error) {
	plaintext, err := crypto.Decrypt(row.Secret, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("challenge: decrypt secret: %w", err)
	}

	rec := &Record{
		ID:     row.ID,
		UserID: row.UserID,
		Secret: string(plaintext),
	}
	if row.LastAccess != nil {
		last := row.LastAccess.UTC()
		rec.LastAccess = &last
	}
	return rec, nil
}
