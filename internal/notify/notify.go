// Package notify implements the email notification channel used to report
// provisioning cycle outcomes. Delivery failure is logged only; a missed
// email never fails a cycle.
package notify

import (
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/parentsync/parentsync/internal/config"
)

// Notifier sends a message to a list of recipients.
type Notifier interface {
	Send(recipients []string, subject, body string)
}

// SMTP delivers notifications over SMTP.
type SMTP struct {
	cfg config.Notify
}

// NewSMTP creates an SMTP notifier from configuration.
func NewSMTP(cfg config.Notify) *SMTP {
	return &SMTP{cfg: cfg}
}

// Send delivers one message. Errors are logged, never returned.
func (n *SMTP) Send(recipients []string, subject, body string) {
	if !n.cfg.Enabled || len(recipients) == 0 {
		return
	}

	msg := mail.NewMsg()

	if err := msg.From(n.cfg.From); err != nil {
		log.Error().Err(err).Msg("invalid notification sender address")
		return
	}

	if err := msg.To(recipients...); err != nil {
		log.Error().Err(err).Msg("invalid notification recipient address")
		return
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(n.cfg.Port)}
	if n.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.User),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		log.Error().Err(err).Msg("failed to create mail client")
		return
	}

	if err = client.DialAndSend(msg); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to send notification")
		return
	}

	log.Info().Str("subject", subject).Int("recipients", len(recipients)).Msg("notification sent")
}

// Noop discards notifications. Used in tests and dry runs.
type Noop struct{}

// Send implements Notifier.
func (Noop) Send(_ []string, _, _ string) {}
