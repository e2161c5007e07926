// Package lms implements the account directory gateway: all reads and
// writes against the external LMS database. No internal transaction ever
// wraps a gateway call together with a contact-store write; cross-store
// consistency comes from re-derivation on read.
package lms

import (
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/lms/models"
)

// Gateway provides access to the LMS user, context and role assignment
// tables.
type Gateway struct {
	db *gorm.DB
}

// New creates a gateway over an open LMS database handle.
func New(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// FindAccountID looks up an account by exact match on all five identity
// fields. If more than one row matches, a warning is logged and the first
// is returned; ambiguity on the full five-field key is treated as a data
// defect, not an error.
func (g *Gateway) FindAccountID(auth, firstName, lastName, email, username string) (uint64, error) {
	if g.db == nil {
		return 0, ErrDBNil
	}

	var accounts []models.Account

	result := g.db.
		Where("auth = ? AND firstname = ? AND lastname = ? AND email = ? AND username = ?",
			auth, firstName, lastName, email, username).
		Order("id").
		Find(&accounts)
	if result.Error != nil {
		return 0, result.Error
	}

	if len(accounts) == 0 {
		return 0, ErrNotFound
	}

	if len(accounts) > 1 {
		log.Warn().
			Str("username", username).
			Int("matches", len(accounts)).
			Uint64("picked", accounts[0].ID).
			Msg("multiple LMS accounts matched identity fields, using first")
	}

	return accounts[0].ID, nil
}

// FindTargetAccount looks up a pupil account by name, optionally narrowed
// by department (tutor group). The forename is matched with LIKE so the
// caller can pass an initial pattern such as "J%". Unlike FindAccountID
// this fails loudly on ambiguity: linking the wrong pupil is worse than
// linking none.
func (g *Gateway) FindTargetAccount(forename, surname, department string) (*models.Account, error) {
	if g.db == nil {
		return nil, ErrDBNil
	}

	tx := g.db.Where("firstname LIKE ? AND lastname = ?", forename, surname)
	if department != "" {
		tx = tx.Where("department = ?", department)
	}

	var accounts []models.Account

	result := tx.Find(&accounts)
	if result.Error != nil {
		return nil, result.Error
	}

	switch {
	case len(accounts) == 0:
		return nil, ErrNotFound
	case len(accounts) > 1:
		return nil, ErrAmbiguousMatch
	}

	return &accounts[0], nil
}

// GetAccount retrieves an account row by id.
func (g *Gateway) GetAccount(id uint64) (*models.Account, error) {
	if g.db == nil {
		return nil, ErrDBNil
	}

	var account models.Account

	result := g.db.First(&account, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, result.Error
	}

	return &account, nil
}

// GetOrCreateUserContext returns the user-scoped authorization context for
// an account, creating it when absent.
func (g *Gateway) GetOrCreateUserContext(accountID uint64) (uint64, error) {
	if g.db == nil {
		return 0, ErrDBNil
	}

	var ctx models.Context

	result := g.db.
		Where("contextlevel = ? AND instanceid = ?", models.ContextUser, accountID).
		First(&ctx)

	if result.Error == nil {
		return ctx.ID, nil
	}

	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, result.Error
	}

	ctx = models.Context{
		ContextLevel: models.ContextUser,
		InstanceID:   accountID,
		Depth:        2,
	}

	if result = g.db.Create(&ctx); result.Error != nil {
		return 0, result.Error
	}

	// the path contains the context's own id, so it is set after insert
	ctx.Path = pathForContext(ctx.ID)
	if result = g.db.Save(&ctx); result.Error != nil {
		return 0, result.Error
	}

	log.Info().Uint64("account_id", accountID).Uint64("context_id", ctx.ID).Msg("created user context")

	return ctx.ID, nil
}

// GetRoleAssignment returns the id of the assignment granting roleID to
// userID in contextID, or 0 when none exists.
func (g *Gateway) GetRoleAssignment(userID, roleID, contextID uint64) (uint64, error) {
	if g.db == nil {
		return 0, ErrDBNil
	}

	var ra models.RoleAssignment

	result := g.db.
		Where("userid = ? AND roleid = ? AND contextid = ?", userID, roleID, contextID).
		First(&ra)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}

		return 0, result.Error
	}

	return ra.ID, nil
}

// AddRoleAssignment inserts an assignment. It always inserts; callers
// check existence with GetRoleAssignment first.
func (g *Gateway) AddRoleAssignment(userID, roleID, contextID, modifierID uint64) (uint64, error) {
	if g.db == nil {
		return 0, ErrDBNil
	}

	ra := models.RoleAssignment{
		RoleID:       roleID,
		ContextID:    contextID,
		UserID:       userID,
		ModifierID:   modifierID,
		TimeModified: time.Now().Unix(),
	}

	if result := g.db.Create(&ra); result.Error != nil {
		return 0, result.Error
	}

	return ra.ID, nil
}

// RemoveRoleAssignment deletes an assignment by id and returns the number
// of rows affected.
func (g *Gateway) RemoveRoleAssignment(assignmentID uint64) (int64, error) {
	if g.db == nil {
		return 0, ErrDBNil
	}

	result := g.db.Delete(&models.RoleAssignment{}, assignmentID)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

// RenameAccountEmail updates an account's email address and username. The
// LMS account sync matches on username, so both move together.
func (g *Gateway) RenameAccountEmail(id uint64, newEmail string) error {
	if g.db == nil {
		return ErrDBNil
	}

	result := g.db.Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"email": newEmail, "username": newEmail})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func pathForContext(id uint64) string {
	// system context is always id 1 at depth 1
	return "/1/" + strconv.FormatUint(id, 10)
}
