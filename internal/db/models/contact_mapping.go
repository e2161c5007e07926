package models

import "time"

// ContactMapping links a contact's materialized LMS account to one
// already-existing pupil account. The external role assignment is the
// ground truth for whether the link is active; this row records which
// pupil the link belongs to and when it was last synced.
type ContactMapping struct {
	// ID is the unique identifier for the mapping.
	ID uint64 `gorm:"primaryKey"`
	// ContactID is the owning contact.
	// A contact may have one mapping per linked pupil.
	ContactID uint64 `gorm:"not null;index;uniqueIndex:idx_contact_adno"`
	// Adno is the admissions number of the pupil in the MIS. Unique
	// together with ContactID.
	Adno string `gorm:"size:32;not null;uniqueIndex:idx_contact_adno"`
	// MISID is the pupil's numeric MIS primary key.
	MISID uint64 `gorm:"column:mis_id"`
	// ExternalMISID is the pupil's stable MIS GUID.
	ExternalMISID string `gorm:"column:external_mis_id;size:36"`
	// MdlUserID is the pupil's LMS user id.
	MdlUserID uint64 `gorm:"column:mdl_user_id"`
	// Username is the pupil's LMS username at the time of linking.
	Username string `gorm:"size:100"`
	// DateSynced is when the link was last confirmed against the LMS.
	DateSynced *time.Time
	// CreatedAt is the timestamp when the mapping was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the mapping was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the ContactMapping model.
func (ContactMapping) TableName() string {
	return "contact_mappings"
}
