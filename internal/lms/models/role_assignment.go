package models

// RoleAssignment is an LMS role assignment row: a grant of a role to a
// user within an authorization context.
type RoleAssignment struct {
	ID           uint64 `gorm:"primaryKey"`
	RoleID       uint64 `gorm:"column:roleid"`
	ContextID    uint64 `gorm:"column:contextid"`
	UserID       uint64 `gorm:"column:userid"`
	ModifierID   uint64 `gorm:"column:modifierid"`
	TimeModified int64  `gorm:"column:timemodified"`
}

// TableName specifies the LMS role assignments table.
func (RoleAssignment) TableName() string {
	return "mdl_role_assignments"
}
