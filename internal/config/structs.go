package config

import (
	"github.com/parentsync/parentsync/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode    bool // enable dev mode for development
	InternalDB DB   // contact store
	LMSDB      DB   // LMS database (read/write through the gateway)
	Log        logger.Log
	Title      string
	Provision  Provision
	TaskRunner TaskRunner
	Notify     Notify
}

// Provision holds the role ids, context list and matching behaviour used
// when linking a parent account to pupil accounts.
type Provision struct {
	// ParentRoleID is the LMS role granted to a parent account in the
	// pupil's user context.
	ParentRoleID uint64 `toml:"parentRoleId"`
	// ModifierID is recorded on every role assignment written by the tool.
	ModifierID uint64 `toml:"modifierId"`
	// StaticContextIDs is a newline-separated list of context ids every
	// parent account is granted the parent role in. Non-numeric or zero
	// entries are skipped with a warning.
	StaticContextIDs string `toml:"staticContextIds"`
	// MatchByDepartment includes the pupil's tutor group in target account
	// matching instead of matching on name alone.
	MatchByDepartment bool `toml:"matchByDepartment"`
	// FullForename matches pupils on the full forename rather than the
	// initial only.
	FullForename bool `toml:"fullForename"`
	// AuthPlugin is the LMS auth plugin new parent accounts are created
	// with by the external sync job.
	AuthPlugin string `toml:"authPlugin"`
}

// TaskRunner configures invocation of the LMS's own scheduled tasks.
type TaskRunner struct {
	// BinPath is the LMS task CLI, e.g. /usr/bin/php /var/www/admin/cli/scheduled_task.php.
	BinPath string `toml:"binPath"`
	// RunAsUser runs the task CLI under this OS account via sudo when set.
	RunAsUser string `toml:"runAsUser"`
	// TimeoutSeconds bounds a single task invocation. Zero means the
	// default of 300 seconds.
	TimeoutSeconds int `toml:"timeoutSeconds"`
	// SyncTask is the task identifier that consumes the pending-auth table.
	SyncTask string `toml:"syncTask"`
	// CredentialsTask is the task identifier that mails new credentials.
	CredentialsTask string `toml:"credentialsTask"`
}

// Notify configures the email notification channel.
type Notify struct {
	Enabled    bool     `toml:"enabled"`
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	User       string   `toml:"user"`
	Password   string   `toml:"password"`
	From       string   `toml:"from"`
	Recipients []string `toml:"recipients"`
}
