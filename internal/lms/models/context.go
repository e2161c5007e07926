package models

const (
	// ContextUser is the LMS context level for a user-scoped authorization
	// context.
	ContextUser = 30
)

// Context is an LMS authorization context row: a scope (user, category,
// course) in which role assignments are granted.
type Context struct {
	ID           uint64 `gorm:"primaryKey"`
	ContextLevel int    `gorm:"column:contextlevel"`
	InstanceID   uint64 `gorm:"column:instanceid"`
	Depth        int
	Path         string `gorm:"size:255"`
}

// TableName specifies the LMS context table.
func (Context) TableName() string {
	return "mdl_context"
}
