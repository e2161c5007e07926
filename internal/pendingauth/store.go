// Package pendingauth manages the staging table the LMS account sync
// consumes. One row per live contact; rows must be removed before the
// owning contact leaves a live status, or the LMS account stays enabled
// without a contact authorizing it.
package pendingauth

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/lms/models"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("pending-auth database connection is nil")
	// ErrNoRows is returned when a delete affected no rows.
	ErrNoRows = errors.New("no pending-auth rows affected")
)

// Store provides access to the pending-auth staging table.
type Store struct {
	db *gorm.DB
}

// New creates a store over the LMS database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert adds one staging row.
func (s *Store) Insert(entry *models.PendingAuth) error {
	if s.db == nil {
		return ErrDBNil
	}

	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))
	entry.Username = strings.ToLower(strings.TrimSpace(entry.Username))

	return s.db.Create(entry).Error
}

// DeleteByOwner removes the staging rows belonging to a contact. It fails
// with ErrNoRows when nothing was deleted; deprovisioning must not
// silently no-op.
func (s *Store) DeleteByOwner(ownerID uint64) error {
	if s.db == nil {
		return ErrDBNil
	}

	result := s.db.Where("request_id = ?", ownerID).Delete(&models.PendingAuth{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNoRows
	}

	return nil
}

// DeleteAll clears the staging table.
func (s *Store) DeleteAll() error {
	if s.db == nil {
		return ErrDBNil
	}

	return s.db.Where("1 = 1").Delete(&models.PendingAuth{}).Error
}

// ExistsForEmail reports whether a staging row exists for an email
// address. Matching is case-insensitive; rows are stored lowercased.
func (s *Store) ExistsForEmail(email string) (bool, error) {
	if s.db == nil {
		return false, ErrDBNil
	}

	var count int64

	result := s.db.Model(&models.PendingAuth{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}

	return count > 0, nil
}

// GetByOwner returns the staging row for a contact, or nil when absent.
func (s *Store) GetByOwner(ownerID uint64) (*models.PendingAuth, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var entry models.PendingAuth

	result := s.db.Where("request_id = ?", ownerID).First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, result.Error
	}

	return &entry, nil
}

// UpdateEmailByOwner rewrites the email and username on a contact's
// staging row and returns the number of rows affected. The caller treats
// anything other than exactly one row as fatal.
func (s *Store) UpdateEmailByOwner(ownerID uint64, newEmail string) (int64, error) {
	if s.db == nil {
		return 0, ErrDBNil
	}

	newEmail = strings.ToLower(strings.TrimSpace(newEmail))

	result := s.db.Model(&models.PendingAuth{}).
		Where("request_id = ?", ownerID).
		Updates(map[string]interface{}{"email": newEmail, "username": newEmail})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
