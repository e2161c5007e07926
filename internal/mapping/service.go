// Package mapping links a contact's materialized LMS account to pupil
// accounts via role assignments in the pupil's user context. The external
// role assignment table is the ground truth for whether a link is active;
// the internal mapping row only records which pupil the link belongs to.
// Map and Unmap re-check existence on every call, so repeating either
// converges to the same external state as calling it once.
package mapping

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/db/models"
	"github.com/parentsync/parentsync/internal/lms"
)

// Service coordinates mapping rows with the LMS role assignment table.
type Service struct {
	db  *gorm.DB
	gw  *lms.Gateway
	cfg config.Provision
}

// New creates the mapping service.
func New(db *gorm.DB, gw *lms.Gateway, cfg config.Provision) *Service {
	return &Service{db: db, gw: gw, cfg: cfg}
}

// Load retrieves a mapping by internal id.
func (s *Service) Load(id uint64) (*models.ContactMapping, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var m models.ContactMapping

	result := s.db.First(&m, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, result.Error
	}

	return &m, nil
}

// LoadByContactAdno retrieves a mapping by its natural key: the owning
// contact and the pupil's admissions number.
func (s *Service) LoadByContactAdno(contactID uint64, adno string) (*models.ContactMapping, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var m models.ContactMapping

	result := s.db.Where("contact_id = ? AND adno = ?", contactID, adno).First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, result.Error
	}

	return &m, nil
}

// ListByContact returns all mappings owned by a contact.
func (s *Service) ListByContact(contactID uint64) ([]models.ContactMapping, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var out []models.ContactMapping

	result := s.db.Where("contact_id = ?", contactID).Order("id").Find(&out)
	if result.Error != nil {
		return nil, result.Error
	}

	return out, nil
}

// Save persists a mapping row.
func (s *Service) Save(m *models.ContactMapping) error {
	if s.db == nil {
		return ErrDBNil
	}

	return s.db.Save(m).Error
}

// Delete destroys the internal mapping row. It refuses while the external
// role assignment still exists: the row must outlive the link it records.
func (s *Service) Delete(m *models.ContactMapping, sourceAccountID uint64) error {
	if s.db == nil {
		return ErrDBNil
	}

	assignmentID, err := s.assignmentID(m, sourceAccountID)
	if err != nil {
		return err
	}

	if assignmentID != 0 {
		return errors.Wrapf(ErrStillMapped, "mapping %d", m.ID)
	}

	return s.db.Delete(&models.ContactMapping{}, m.ID).Error
}

// IsMapped reports whether the role assignment linking the contact's
// account to the pupil exists in the LMS. Always re-derived, never cached.
func (s *Service) IsMapped(m *models.ContactMapping, sourceAccountID uint64) (bool, error) {
	assignmentID, err := s.assignmentID(m, sourceAccountID)
	if err != nil {
		return false, err
	}

	return assignmentID != 0, nil
}

// Map ensures the role assignment linking the contact's account to the
// pupil exists and returns its id. A no-op when already mapped.
func (s *Service) Map(m *models.ContactMapping, sourceAccountID uint64) (uint64, error) {
	contextID, err := s.gw.GetOrCreateUserContext(m.MdlUserID)
	if err != nil {
		return 0, err
	}

	assignmentID, err := s.gw.GetRoleAssignment(sourceAccountID, s.cfg.ParentRoleID, contextID)
	if err != nil {
		return 0, err
	}

	if assignmentID != 0 {
		return assignmentID, nil
	}

	assignmentID, err = s.gw.AddRoleAssignment(sourceAccountID, s.cfg.ParentRoleID, contextID, s.cfg.ModifierID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	m.DateSynced = &now

	if s.db != nil {
		if saveErr := s.db.Save(m).Error; saveErr != nil {
			// the assignment exists; the next cycle re-derives and heals
			log.Warn().Err(saveErr).Uint64("mapping_id", m.ID).Msg("failed to record mapping sync time")
		}
	}

	log.Info().
		Uint64("mapping_id", m.ID).
		Uint64("source_account", sourceAccountID).
		Uint64("pupil_account", m.MdlUserID).
		Msg("parent linked to pupil")

	return assignmentID, nil
}

// Unmap removes the role assignment. A no-op when already unmapped.
func (s *Service) Unmap(m *models.ContactMapping, sourceAccountID uint64) error {
	assignmentID, err := s.assignmentID(m, sourceAccountID)
	if err != nil {
		return err
	}

	if assignmentID == 0 {
		return nil
	}

	rows, err := s.gw.RemoveRoleAssignment(assignmentID)
	if err != nil {
		return err
	}

	if rows == 0 {
		// raced with another remover; the assignment is gone either way
		log.Warn().Uint64("mapping_id", m.ID).Msg("role assignment already removed")
	}

	return nil
}

// assignmentID derives the current assignment id from the LMS. The pupil
// may not have a user context yet; that simply means unmapped.
func (s *Service) assignmentID(m *models.ContactMapping, sourceAccountID uint64) (uint64, error) {
	contextID, err := s.gw.GetOrCreateUserContext(m.MdlUserID)
	if err != nil {
		return 0, err
	}

	return s.gw.GetRoleAssignment(sourceAccountID, s.cfg.ParentRoleID, contextID)
}
