// Package contact owns the contact lifecycle: creation, approval,
// deprovisioning, permanent deletion and drift repair. A contact is one
// provisioning subject moving through the status machine defined in the
// models package.
package contact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/db/models"
	"github.com/parentsync/parentsync/internal/lms"
	lmsmodels "github.com/parentsync/parentsync/internal/lms/models"
	"github.com/parentsync/parentsync/internal/pendingauth"
)

// Service coordinates the contact store, the LMS gateway and the
// pending-auth staging table.
type Service struct {
	db       *gorm.DB
	gw       *lms.Gateway
	pending  *pendingauth.Store
	cfg      config.Provision
	validate *validator.Validate
}

// New creates the contact service.
func New(db *gorm.DB, gw *lms.Gateway, pending *pendingauth.Store, cfg config.Provision) *Service {
	return &Service{
		db:       db,
		gw:       gw,
		pending:  pending,
		cfg:      cfg,
		validate: validator.New(),
	}
}

// CreateInput carries an inbound contact submission. The status a caller
// supplies is ignored; new contacts always start pending.
type CreateInput struct {
	MISID         uint64
	ExternalMISID string
	Title         string
	Forename      string `validate:"required"`
	Surname       string `validate:"required"`
	Email         string `validate:"required,email"`
	StaffComment  string
	Pupil1        models.PupilLink
	Pupil2        models.PupilLink
	Pupil3        models.PupilLink
}

// Create inserts a new contact in pending status and makes a best-effort
// attempt to resolve an already-existing LMS account from a prior cycle.
func (s *Service) Create(in CreateInput) (*models.Contact, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "invalid contact submission")
	}

	if in.ExternalMISID != "" {
		if _, err := uuid.Parse(in.ExternalMISID); err != nil {
			return nil, errors.Wrap(err, "invalid external MIS id")
		}
	}

	c := &models.Contact{
		MISID:         in.MISID,
		ExternalMISID: in.ExternalMISID,
		Title:         in.Title,
		Forename:      in.Forename,
		Surname:       in.Surname,
		Email:         in.Email,
		StaffComment:  in.StaffComment,
		Status:        models.StatusPending,
		Pupil1:        in.Pupil1,
		Pupil2:        in.Pupil2,
		Pupil3:        in.Pupil3,
	}

	c.AppendComment("contact created from MIS submission")

	if result := s.db.Create(c); result.Error != nil {
		return nil, result.Error
	}

	// the account may already exist from a prior cycle; resolving it now
	// is best effort and never fails the create
	if err := s.ResolveAccount(c); err == nil {
		if result := s.db.Save(c); result.Error != nil {
			return nil, result.Error
		}
	}

	return c, nil
}

// Save persists the contact record.
func (s *Service) Save(c *models.Contact) error {
	if s.db == nil {
		return ErrDBNil
	}

	return s.db.Save(c).Error
}

// Load retrieves a contact by id. It is a pure read; callers that want
// drift repair call Reconcile, or LoadAndHeal for both.
func (s *Service) Load(id uint64) (*models.Contact, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var c models.Contact

	result := s.db.First(&c, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, result.Error
	}

	return &c, nil
}

// LoadApproved returns all contacts in approved status in id order.
func (s *Service) LoadApproved() ([]models.Contact, error) {
	if s.db == nil {
		return nil, ErrDBNil
	}

	var out []models.Contact

	result := s.db.Where("status = ?", models.StatusApproved).Order("id").Find(&out)
	if result.Error != nil {
		return nil, result.Error
	}

	return out, nil
}

// LoadAndHeal loads a contact and repairs detected drift. This preserves
// the legacy read-with-repair behaviour for callers that want it.
func (s *Service) LoadAndHeal(id uint64) (*models.Contact, error) {
	c, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	if err = s.Reconcile(c); err != nil {
		return c, err
	}

	return c, nil
}

// Transition moves the contact to the target status, refusing moves
// the status machine does not permit. The caller persists the change.
func (s *Service) Transition(c *models.Contact, to models.Status) error {
	if !c.Status.CanTransitionTo(to) {
		return errors.Wrapf(ErrInvalidTransition, "contact %d cannot move from %s to %s", c.ID, c.Status, to)
	}

	c.Status = to

	return nil
}

// Reconcile repairs drift between the stored status and the LMS. A
// contact recorded as provisioned or partial whose account no longer
// resolves is reset to pending and re-approved, which stages a fresh
// pending-auth row for the next sync.
func (s *Service) Reconcile(c *models.Contact) error {
	if c.Status != models.StatusProvisioned && c.Status != models.StatusPartial {
		return nil
	}

	err := s.ResolveAccount(c)
	if err == nil {
		return nil
	}

	if !errors.Is(err, lms.ErrNotFound) {
		return err
	}

	log.Warn().
		Uint64("contact_id", c.ID).
		Str("status", string(c.Status)).
		Msg("contact marked provisioned but LMS account missing, re-staging")

	c.AppendComment(fmt.Sprintf("status was %s but LMS account could not be found, reset to pending", c.Status))

	if err = s.Transition(c, models.StatusPending); err != nil {
		return err
	}

	c.MdlUserID = nil

	if result := s.db.Save(c); result.Error != nil {
		return result.Error
	}

	// the contact's own staging row usually survives the lost account;
	// drop it so re-approval stages a fresh row instead of tripping the
	// duplicate check against itself
	if err = s.pending.DeleteByOwner(c.ID); err != nil && !errors.Is(err, pendingauth.ErrNoRows) {
		return errors.Wrapf(err, "failed to drop stale staging row for contact %d", c.ID)
	}

	return s.Approve(c)
}

// Approve moves a pending contact to approved and stages it for the LMS
// account sync. If another live contact already stages the same email the
// contact is left in duplicate status and ErrDuplicateAccount is
// returned; duplicate requires manual review and is not rolled back.
func (s *Service) Approve(c *models.Contact) error {
	if s.db == nil {
		return ErrDBNil
	}

	if err := s.Transition(c, models.StatusApproved); err != nil {
		return err
	}

	c.AppendComment("approved for provisioning")

	if result := s.db.Save(c); result.Error != nil {
		return result.Error
	}

	exists, err := s.pending.ExistsForEmail(c.Email)
	if err != nil {
		return err
	}

	if exists {
		c.AppendComment("approval refused: another live contact already stages this email")

		if err = s.Transition(c, models.StatusDuplicate); err != nil {
			return err
		}

		if result := s.db.Save(c); result.Error != nil {
			return result.Error
		}

		return errors.Wrapf(ErrDuplicateAccount, "contact %d email %s", c.ID, c.Email)
	}

	entry := &lmsmodels.PendingAuth{
		Username:    c.Email,
		Title:       c.Title,
		FirstName:   c.Forename,
		LastName:    c.Surname,
		Email:       c.Email,
		Description: "parent account for " + c.FullName(),
		RequestID:   c.ID,
	}

	if err = s.pending.Insert(entry); err != nil {
		return errors.Wrapf(err, "failed to stage contact %d", c.ID)
	}

	log.Info().Uint64("contact_id", c.ID).Str("email", c.Email).Msg("contact staged for account sync")

	return nil
}

// Deprovision removes the contact's staging row and moves it to a
// non-live status. The staging delete fails loudly when nothing was
// removed; a silent no-op here would leave the LMS account enabled.
func (s *Service) Deprovision(c *models.Contact, newStatus models.Status) error {
	if s.db == nil {
		return ErrDBNil
	}

	if !newStatus.DeprovisionEligible() {
		return errors.Wrapf(ErrInvalidTransition, "cannot deprovision contact %d into status %s", c.ID, newStatus)
	}

	if !c.Status.CanTransitionTo(newStatus) {
		return errors.Wrapf(ErrInvalidTransition, "contact %d cannot move from %s to %s", c.ID, c.Status, newStatus)
	}

	if err := s.pending.DeleteByOwner(c.ID); err != nil {
		return errors.Wrapf(err, "failed to remove staging row for contact %d", c.ID)
	}

	c.AppendComment("deprovisioned to status " + string(newStatus))
	c.Status = newStatus

	return s.db.Save(c).Error
}

// Delete permanently destroys a contact. It refuses when the contact
// still has pupil mappings, or while the LMS account is provisioned and
// enabled; both guards reload ground truth rather than trusting the
// in-memory record.
func (s *Service) Delete(c *models.Contact) error {
	if s.db == nil {
		return ErrDBNil
	}

	var mappings int64

	result := s.db.Model(&models.ContactMapping{}).Where("contact_id = ?", c.ID).Count(&mappings)
	if result.Error != nil {
		return result.Error
	}

	if mappings > 0 {
		return errors.Wrapf(ErrMappingsExist, "contact %d has %d mappings", c.ID, mappings)
	}

	if s.IsProvisionedAndEnabled(c) {
		return errors.Wrapf(ErrDeleteBlocked, "contact %d", c.ID)
	}

	// a crash between the two writes leaves the contact in deleting;
	// re-running the delete picks up where it stopped
	if c.Status != models.StatusDeleting {
		if err := s.Transition(c, models.StatusDeleting); err != nil {
			return err
		}
	}

	if result = s.db.Save(c); result.Error != nil {
		return result.Error
	}

	return s.db.Delete(&models.Contact{}, c.ID).Error
}

// IsProvisionedAndEnabled reports whether the contact's LMS account is
// live. It is true when the account resolves and is not suspended, or
// when the internal status still claims a live account. Deliberately
// conservative: it errs toward blocking deletion.
func (s *Service) IsProvisionedAndEnabled(c *models.Contact) bool {
	if c.Status.IsLive() {
		return true
	}

	account, err := s.lookupAccount(c)
	if err != nil {
		return false
	}

	return !account.Suspended
}

// ResolveAccount finds the contact's materialized LMS account by exact
// match on auth plugin, name, email and username, and records its id.
func (s *Service) ResolveAccount(c *models.Contact) error {
	id, err := s.gw.FindAccountID(s.cfg.AuthPlugin, c.Forename, c.Surname, c.Email, c.Email)
	if err != nil {
		return err
	}

	c.MdlUserID = &id

	return nil
}

// EnsureRoleInStaticContexts grants the parent role to the contact's
// account in every configured static context. Idempotent: existing
// assignments are left alone.
func (s *Service) EnsureRoleInStaticContexts(c *models.Contact) error {
	if c.MdlUserID == nil {
		return errors.Wrapf(ErrAccountNotResolved, "contact %d", c.ID)
	}

	for _, raw := range strings.Split(s.cfg.StaticContextIDs, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		ctxID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || ctxID == 0 {
			log.Warn().Str("entry", raw).Msg("skipping invalid static context id")
			continue
		}

		existing, err := s.gw.GetRoleAssignment(*c.MdlUserID, s.cfg.ParentRoleID, ctxID)
		if err != nil {
			return err
		}

		if existing != 0 {
			continue
		}

		if _, err = s.gw.AddRoleAssignment(*c.MdlUserID, s.cfg.ParentRoleID, ctxID, s.cfg.ModifierID); err != nil {
			return err
		}
	}

	return nil
}

// UpdateEmail renames the contact's LMS account email and username, then
// rewrites the staging row to match. The rename only starts when a
// staging row exists; if the staging update then does not affect exactly
// one row the account rename is rolled back by re-applying the old
// email. That is the one compensating action in the system.
func (s *Service) UpdateEmail(c *models.Contact, newEmail string) error {
	if s.db == nil {
		return ErrDBNil
	}

	newEmail = strings.ToLower(strings.TrimSpace(newEmail))

	if err := s.validate.Var(newEmail, "required,email"); err != nil {
		return errors.Wrap(err, "invalid email address")
	}

	staged, err := s.pending.GetByOwner(c.ID)
	if err != nil {
		return err
	}

	if staged == nil {
		return errors.Errorf("contact %d has no staging row, refusing email rename", c.ID)
	}

	account, err := s.lookupAccount(c)
	if err != nil {
		return err
	}

	oldEmail := account.Email

	if err = s.gw.RenameAccountEmail(account.ID, newEmail); err != nil {
		return err
	}

	rows, err := s.pending.UpdateEmailByOwner(c.ID, newEmail)
	if err != nil || rows != 1 {
		if rbErr := s.gw.RenameAccountEmail(account.ID, oldEmail); rbErr != nil {
			log.Error().Err(rbErr).Uint64("contact_id", c.ID).Msg("failed to roll back account email rename")
		}

		if err != nil {
			return errors.Wrapf(err, "failed to update staging row for contact %d", c.ID)
		}

		return errors.Errorf("staging row update for contact %d affected %d rows, expected 1", c.ID, rows)
	}

	c.Email = newEmail
	c.AppendComment("email address changed from " + oldEmail + " to " + newEmail)

	return s.db.Save(c).Error
}

// lookupAccount fetches the LMS account row, resolving the id first when
// the contact has not been linked yet.
func (s *Service) lookupAccount(c *models.Contact) (*lmsmodels.Account, error) {
	if c.MdlUserID == nil {
		if err := s.ResolveAccount(c); err != nil {
			return nil, err
		}
	}

	return s.gw.GetAccount(*c.MdlUserID)
}
