package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/edevardHvide/golf-availability-bot/internal/errs"
)

// SMTPSender delivers digests through a direct SMTP relay (Gmail by
// default). Used when no SendGrid API key is configured.
type SMTPSender struct {
	host      string
	port      string
	fromEmail string
	password  string
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(host, port, fromEmail, password string) *SMTPSender {
	return &SMTPSender{host: host, port: port, fromEmail: fromEmail, password: password}
}

// Send implements EmailSender. context is accepted for interface
// symmetry with SendGridSender; net/smtp has no context-aware API.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	auth := smtp.PlainAuth("", s.fromEmail, s.password, s.host)
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s", to, subject, body)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := smtp.SendMail(addr, auth, s.fromEmail, []string{to}, []byte(msg)); err != nil {
		if isAuthError(err) {
			return errs.Auth(fmt.Errorf("smtp send to %s: %w", to, err))
		}
		return errs.Transient(fmt.Errorf("smtp send to %s: %w", to, err))
	}
	return nil
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth") || strings.Contains(msg, "535") || strings.Contains(msg, "credentials")
}
