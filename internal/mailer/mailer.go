// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/iliyamo/affiliate-dashboard/internal/config"
)

// Sender delivers one email.  The queue consumer depends on this interface so
// tests can capture messages without an SMTP server.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody string) error
}

// SMTPMailer is the go-mail backed Sender.
type SMTPMailer struct {
	cfg config.MailConfig
}

// New returns an SMTP sender, or a LogSender when SMTP is not configured.
func New(cfg config.MailConfig) Sender {
	if !cfg.Enabled() {
		log.Warn().Msg("SMTP_HOST not set; emails will only be logged")
		return LogSender{}
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) tlsPolicy() mail.TLSPolicy {
	switch strings.ToLower(m.cfg.TLS) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// Send builds a plain-text message and delivers it in a single SMTP session.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, textBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, textBody)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(m.tlsPolicy()),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}
	log.Info().Str("to", to).Str("subject", subject).Msg("sending email")
	return client.DialAndSendWithContext(ctx, msg)
}

// LogSender writes the message metadata to the log instead of sending it.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Info().Str("to", to).Str("subject", subject).Msg("email not sent (mailer disabled)")
	return nil
}
