// Package models maps the slice of the LMS schema the gateway touches.
package models

// Account is an LMS user row. The gateway never creates accounts directly;
// they are materialized by the LMS's own sync job consuming the
// pending-auth table.
type Account struct {
	ID         uint64 `gorm:"primaryKey"`
	Auth       string `gorm:"size:20"`
	FirstName  string `gorm:"column:firstname;size:100"`
	LastName   string `gorm:"column:lastname;size:100"`
	Email      string `gorm:"size:100"`
	Username   string `gorm:"size:100"`
	Department string `gorm:"size:255"`
	Suspended  bool
	MnetHostID uint64 `gorm:"column:mnethostid"`
}

// TableName specifies the LMS user table.
func (Account) TableName() string {
	return "mdl_user"
}
