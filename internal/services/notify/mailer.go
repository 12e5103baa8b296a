package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
)

// SMTPMailer sends plain-text mail over SMTP with optional AUTH.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *common.Logger
}

// NewSMTPMailer creates a mailer from SMTP configuration.
func NewSMTPMailer(cfg *common.SMTPConfig, logger *common.Logger) *SMTPMailer {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		logger:   logger,
	}
}

// Send delivers one plain-text message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	m.logger.Debug().Str("to", to).Str("subject", subject).Msg("Mail sent")
	return nil
}

// Ensure SMTPMailer implements Mailer
var _ interfaces.Mailer = (*SMTPMailer)(nil)
