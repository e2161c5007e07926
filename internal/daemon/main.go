// Package daemon wires the configuration, databases and services together.
package daemon

import (
	"context"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/contact"
	"github.com/parentsync/parentsync/internal/cycle"
	"github.com/parentsync/parentsync/internal/db/dsn"
	"github.com/parentsync/parentsync/internal/db/models"
	"github.com/parentsync/parentsync/internal/lms"
	"github.com/parentsync/parentsync/internal/mapping"
	"github.com/parentsync/parentsync/internal/notify"
	"github.com/parentsync/parentsync/internal/pendingauth"
	"github.com/parentsync/parentsync/internal/taskrunner"
)

// Daemon holds the wired provisioning pipeline.
type Daemon struct {
	orchestrator *cycle.Orchestrator
}

// New opens both databases and builds the pipeline. Connection failures
// here are fatal; the cycle never runs against a half-wired pipeline.
func New(cfg *config.Config) (*Daemon, error) {
	internalDB, err := open(&cfg.InternalDB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to contact store")
	}

	lmsDB, err := open(&cfg.LMSDB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to LMS database")
	}

	gw := lms.New(lmsDB)
	pending := pendingauth.New(lmsDB)
	contacts := contact.New(internalDB, gw, pending, cfg.Provision)
	mappings := mapping.New(internalDB, gw, cfg.Provision)
	runner := taskrunner.New(cfg.TaskRunner)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled {
		notifier = notify.NewSMTP(cfg.Notify)
	}

	return &Daemon{
		orchestrator: cycle.New(contacts, mappings, gw, runner, notifier, cfg),
	}, nil
}

// RunCycle runs one provisioning cycle.
func (d *Daemon) RunCycle(ctx context.Context, dryRun bool) error {
	_, err := d.orchestrator.Run(ctx, dryRun)

	return err
}

// Migrate creates or updates the internal contact store schema. The LMS
// schema is owned by the LMS and never migrated from here.
func Migrate(cfg *config.Config) error {
	db, err := open(&cfg.InternalDB)
	if err != nil {
		return errors.Wrap(err, "failed to connect to contact store")
	}

	return db.AutoMigrate(
		&models.Contact{},
		&models.ContactMapping{},
	)
}

// open connects one configured database. GormEngine "sqlite" is for
// development only; production runs on mysql.
func open(dbCfg *config.DB) (*gorm.DB, error) {
	if dbCfg.GormEngine == "sqlite" {
		return gorm.Open(sqlite.Open(dbCfg.Name), &gorm.Config{})
	}

	return gorm.Open(gormmysql.Open(dsn.Create(dbCfg)), &gorm.Config{})
}
