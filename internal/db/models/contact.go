package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Status represents the provisioning state of a Contact.
type Status string

const (
	// StatusPending indicates a contact awaiting review.
	StatusPending Status = "pending"
	// StatusApproved indicates a contact staged for account creation by the
	// external LMS sync job.
	StatusApproved Status = "approved"
	// StatusProvisioned indicates a contact whose account exists and is
	// linked to all of its pupil accounts.
	StatusProvisioned Status = "provisioned"
	// StatusPartial indicates a contact whose account exists but at least
	// one pupil link attempt failed. The next cycle retries.
	StatusPartial Status = "partial"
	// StatusRejected indicates a contact turned down by an administrator.
	StatusRejected Status = "rejected"
	// StatusDuplicate indicates approval was refused because another live
	// contact already stages the same email address.
	StatusDuplicate Status = "duplicate"
	// StatusBogus indicates a submission judged not to be a real person.
	StatusBogus Status = "bogus"
	// StatusUnknown indicates a record imported without a recognisable state.
	StatusUnknown Status = "unknown"
	// StatusDeleting is an internal state used only while a permanent
	// delete is in progress.
	StatusDeleting Status = "deleting"
)

// transitions lists the permitted status moves. Live contacts may be
// deprovisioned into any dead status, dead contacts may be
// recategorised or resurrected to pending, and drift repair returns
// provisioned and partial contacts to pending. Deleting is terminal.
var transitions = map[Status][]Status{ //nolint:gochecknoglobals
	StatusPending:     {StatusApproved, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting},
	StatusApproved:    {StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusProvisioned, StatusPartial, StatusDeleting},
	StatusProvisioned: {StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting},
	StatusPartial:     {StatusProvisioned, StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting},
	StatusRejected:    {StatusPending, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting},
	StatusDuplicate:   {StatusPending, StatusRejected, StatusBogus, StatusUnknown, StatusDeleting},
	StatusBogus:       {StatusPending, StatusRejected, StatusDuplicate, StatusUnknown, StatusDeleting},
	StatusUnknown:     {StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusDeleting},
	StatusDeleting:    {},
}

// CanTransitionTo reports whether moving from s to target is a permitted
// status transition.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}

	return false
}

// IsLive reports whether an account in this status is assumed to have, or
// be about to have, an enabled LMS account.
func (s Status) IsLive() bool {
	return s == StatusApproved || s == StatusProvisioned
}

// DeprovisionEligible reports whether a contact may be deprovisioned into
// this status.
func (s Status) DeprovisionEligible() bool {
	switch s {
	case StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting:
		return true
	case StatusApproved, StatusProvisioned, StatusPartial:
		return false
	}

	return false
}

// PupilLink carries the identifying data for one pupil a contact should be
// linked to. A blank link (no forename and no surname) is an unused slot.
type PupilLink struct {
	Forename   string `gorm:"size:100"`
	Surname    string `gorm:"size:100"`
	Adno       string `gorm:"size:32"`
	Department string `gorm:"size:100"`
}

// Blank reports whether the slot carries no pupil data.
func (p PupilLink) Blank() bool {
	return strings.TrimSpace(p.Forename) == "" && strings.TrimSpace(p.Surname) == ""
}

// Contact represents one provisioning subject: a parent exported by the
// MIS who should receive an LMS account linked to their pupils.
type Contact struct {
	// ID is the unique identifier for the contact, owned by the internal store.
	ID uint64 `gorm:"primaryKey"`
	// MISID is the numeric primary key of the contact in the MIS.
	MISID uint64 `gorm:"column:mis_id;index"`
	// ExternalMISID is the stable GUID the MIS publishes for the contact.
	ExternalMISID string `gorm:"column:external_mis_id;size:36"`
	// MdlUserID is the LMS user id once the account has been materialized
	// by the external sync job. Nil until then.
	MdlUserID *uint64 `gorm:"column:mdl_user_id"`
	// Title is the contact's salutation.
	Title string `gorm:"size:20"`
	// Forename is the contact's first or given name.
	Forename string `gorm:"size:100"`
	// Surname is the contact's last or family name.
	Surname string `gorm:"size:100"`
	// Email is the contact's email address, case-folded to lowercase. It is
	// the matching key against the LMS account username.
	Email string `gorm:"size:255;not null"`
	// StaffComment is free text entered by administrators.
	StaffComment string `gorm:"type:text"`
	// SystemComment is the append-only, newline-delimited audit log.
	SystemComment string `gorm:"type:text"`
	// Status is the position of the contact in the provisioning state machine.
	Status Status `gorm:"type:varchar(20);not null;default:'pending'"`
	// Pupil1 is the first pupil link slot. It is mandatory for provisioning.
	Pupil1 PupilLink `gorm:"embedded;embeddedPrefix:pupil1_"`
	// Pupil2 is the optional second pupil link slot.
	Pupil2 PupilLink `gorm:"embedded;embeddedPrefix:pupil2_"`
	// Pupil3 is the optional third pupil link slot.
	Pupil3 PupilLink `gorm:"embedded;embeddedPrefix:pupil3_"`
	// CreatedAt is the timestamp when the contact was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the contact was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Contact model.
func (Contact) TableName() string {
	return "contacts"
}

// BeforeSave case-folds the email so the LMS username match key is stable.
func (c *Contact) BeforeSave(_ *gorm.DB) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))

	return nil
}

// PupilLinks returns the three link slots in order.
func (c *Contact) PupilLinks() []PupilLink {
	return []PupilLink{c.Pupil1, c.Pupil2, c.Pupil3}
}

// FullName returns the contact's display name.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.Forename + " " + c.Surname)
}

// AppendComment adds a timestamped line to the append-only system comment.
func (c *Contact) AppendComment(msg string) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), msg)

	if c.SystemComment == "" {
		c.SystemComment = line
		return
	}

	c.SystemComment += "\n" + line
}
