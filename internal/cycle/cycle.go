// Package cycle implements the batch provisioning driver. One cycle loads
// every approved contact, triggers the LMS account sync once, links each
// materialized account to its pupils and settles contact statuses. A
// single contact's failure never aborts the batch; each cycle re-derives
// state from both stores, so a failed step is retried on the next pass.
package cycle

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/contact"
	"github.com/parentsync/parentsync/internal/db/models"
	"github.com/parentsync/parentsync/internal/lms"
	"github.com/parentsync/parentsync/internal/mapping"
	"github.com/parentsync/parentsync/internal/notify"
	"github.com/parentsync/parentsync/internal/taskrunner"
)

// Orchestrator drives one provisioning cycle.
type Orchestrator struct {
	contacts *contact.Service
	mappings *mapping.Service
	gw       *lms.Gateway
	runner   taskrunner.TaskRunner
	notifier notify.Notifier
	cfg      *config.Config
}

// New creates an orchestrator. All collaborators are required.
func New(
	contacts *contact.Service,
	mappings *mapping.Service,
	gw *lms.Gateway,
	runner taskrunner.TaskRunner,
	notifier notify.Notifier,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		contacts: contacts,
		mappings: mappings,
		gw:       gw,
		runner:   runner,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Outcome summarizes one cycle.
type Outcome struct {
	Processed   int
	Provisioned int
	Partial     int
	Failed      int
	// Details holds one human-readable line per processed contact.
	Details []string
}

// Run executes one provisioning cycle. The context is checked between
// contacts so a cancelled cycle stops at the next contact boundary.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) (*Outcome, error) {
	approved, err := o.contacts.LoadApproved()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load approved contacts")
	}

	if len(approved) == 0 {
		log.Info().Msg("no approved contacts, nothing to do")
		return &Outcome{}, nil
	}

	log.Info().Int("contacts", len(approved)).Msg("starting provisioning cycle")

	if dryRun {
		out := &Outcome{Processed: len(approved)}
		for i := range approved {
			out.Details = append(out.Details, fmt.Sprintf("%s <%s>: would provision", approved[i].FullName(), approved[i].Email))
		}

		return out, nil
	}

	cyclesTotal.Inc()

	// one sync for the whole batch; this is the step that turns staging
	// rows into real accounts
	o.runTask(ctx, o.cfg.TaskRunner.SyncTask)

	out := &Outcome{}

	for i := range approved {
		if err = ctx.Err(); err != nil {
			return out, errors.Wrap(err, "cycle cancelled")
		}

		c := &approved[i]
		out.Processed++

		switch provErr := o.provisionContact(c); {
		case provErr == nil && c.Status == models.StatusProvisioned:
			out.Provisioned++
			contactOutcomes.WithLabelValues("provisioned").Inc()
			out.Details = append(out.Details, fmt.Sprintf("%s <%s>: provisioned", c.FullName(), c.Email))
		case provErr == nil:
			out.Partial++
			contactOutcomes.WithLabelValues("partial").Inc()
			out.Details = append(out.Details, fmt.Sprintf("%s <%s>: partially linked", c.FullName(), c.Email))
		default:
			out.Failed++
			contactOutcomes.WithLabelValues("failed").Inc()
			out.Details = append(out.Details, fmt.Sprintf("%s <%s>: %v", c.FullName(), c.Email, provErr))
			log.Error().Err(provErr).Uint64("contact_id", c.ID).Msg("contact provisioning failed")
		}
	}

	o.summarize(ctx, out)

	return out, nil
}

// provisionContact resolves one approved contact's account, grants static
// context roles and links every filled pupil slot. A nil error with
// status partial means the account exists but at least one link failed.
func (o *Orchestrator) provisionContact(c *models.Contact) error {
	if err := o.contacts.ResolveAccount(c); err != nil {
		c.AppendComment("LMS account not yet materialized, will retry next cycle")

		if saveErr := o.contacts.Save(c); saveErr != nil {
			return saveErr
		}

		return errors.Wrapf(err, "account for %s not found", c.Email)
	}

	if err := o.contacts.Save(c); err != nil {
		return err
	}

	if c.Pupil1.Blank() {
		c.AppendComment("first pupil link is blank, cannot provision")

		if saveErr := o.contacts.Save(c); saveErr != nil {
			return saveErr
		}

		return errors.Errorf("contact %d has no first pupil link", c.ID)
	}

	completeSuccess := true

	var failures []string

	if err := o.contacts.EnsureRoleInStaticContexts(c); err != nil {
		completeSuccess = false

		failures = append(failures, fmt.Sprintf("static contexts: %v", err))
	}

	for i, link := range c.PupilLinks() {
		if link.Blank() {
			continue // unused secondary slot, not an error
		}

		if err := o.linkPupil(c, link); err != nil {
			completeSuccess = false

			failures = append(failures, fmt.Sprintf("pupil %d (%s %s): %v", i+1, link.Forename, link.Surname, err))
		}
	}

	if completeSuccess {
		c.AppendComment("all pupil links in place, contact provisioned")

		if err := o.contacts.Transition(c, models.StatusProvisioned); err != nil {
			return err
		}
	} else {
		c.AppendComment("link failures: " + strings.Join(failures, "; "))

		if err := o.contacts.Transition(c, models.StatusPartial); err != nil {
			return err
		}
	}

	return o.contacts.Save(c)
}

// linkPupil matches one pupil link slot against the LMS and ensures the
// mapping and role assignment exist.
func (o *Orchestrator) linkPupil(c *models.Contact, link models.PupilLink) error {
	if strings.TrimSpace(link.Adno) == "" {
		return errors.New("pupil link has no admissions number")
	}

	forename := strings.TrimSpace(link.Forename)
	if !o.cfg.Provision.FullForename && forename != "" {
		// match on the initial only; the initial may be multi-byte
		r, _ := utf8.DecodeRuneInString(forename)
		forename = string(r) + "%"
	}

	department := ""
	if o.cfg.Provision.MatchByDepartment {
		department = strings.TrimSpace(link.Department)
	}

	target, err := o.gw.FindTargetAccount(forename, strings.TrimSpace(link.Surname), department)
	if err != nil {
		return err
	}

	m, err := o.mappings.LoadByContactAdno(c.ID, link.Adno)

	switch {
	case errors.Is(err, mapping.ErrNotFound):
		m = &models.ContactMapping{
			ContactID: c.ID,
			Adno:      link.Adno,
			MdlUserID: target.ID,
			Username:  target.Username,
		}

		if err = o.mappings.Save(m); err != nil {
			return err
		}
	case err != nil:
		return err
	case m.MdlUserID != target.ID:
		// the pupil's account was re-created since the last cycle
		m.MdlUserID = target.ID
		m.Username = target.Username

		if err = o.mappings.Save(m); err != nil {
			return err
		}
	}

	_, err = o.mappings.Map(m, *c.MdlUserID)

	return err
}

// runTask invokes one LMS task. A non-zero exit or invocation failure is
// logged as a warning only; the next cycle self-heals anything the sync
// left undone.
func (o *Orchestrator) runTask(ctx context.Context, task string) {
	if task == "" {
		return
	}

	lines, exitCode, err := o.runner.Run(ctx, task)
	if err != nil {
		log.Warn().Err(err).Str("task", task).Msg("LMS task invocation failed")
		return
	}

	if exitCode != 0 {
		log.Warn().
			Str("task", task).
			Int("exit_code", exitCode).
			Str("output", strings.Join(lines, "\n")).
			Msg("LMS task exited non-zero")
	}
}

// summarize sends the cycle outcome notification. New credentials are
// only mailed when every contact in the batch fully provisioned; a mixed
// cycle holds them back until the next clean pass.
func (o *Orchestrator) summarize(ctx context.Context, out *Outcome) {
	body := fmt.Sprintf("processed %d contacts: %d provisioned, %d partial, %d failed\n\n%s",
		out.Processed, out.Provisioned, out.Partial, out.Failed, strings.Join(out.Details, "\n"))

	switch {
	case out.Failed == 0 && out.Partial == 0:
		o.runTask(ctx, o.cfg.TaskRunner.CredentialsTask)
		o.notifier.Send(o.cfg.Notify.Recipients, "parent provisioning succeeded", body)
	case out.Provisioned == 0:
		o.notifier.Send(o.cfg.Notify.Recipients, "parent provisioning failed", body)
	default:
		o.notifier.Send(o.cfg.Notify.Recipients, "parent provisioning partially succeeded", body)
	}

	log.Info().
		Int("processed", out.Processed).
		Int("provisioned", out.Provisioned).
		Int("partial", out.Partial).
		Int("failed", out.Failed).
		Msg("provisioning cycle complete")
}
