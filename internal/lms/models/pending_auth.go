package models

// PendingAuth is one staging row consumed by the LMS's external account
// sync. Inserting a row here is the only way a new account gets
// materialized; the tool never writes the user table directly.
type PendingAuth struct {
	ID          uint64 `gorm:"primaryKey"`
	Username    string `gorm:"size:100;not null"`
	Title       string `gorm:"size:20"`
	FirstName   string `gorm:"column:firstname;size:100"`
	LastName    string `gorm:"column:lastname;size:100"`
	Email       string `gorm:"size:100;not null"`
	Description string `gorm:"size:255"`
	// RequestID is the internal id of the owning contact.
	RequestID uint64 `gorm:"column:request_id;index"`
}

// TableName specifies the staging table read by the LMS auth sync.
func (PendingAuth) TableName() string {
	return "parent_auth"
}
