package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers digests through the SendGrid API. Selected
// whenever SENDGRID_API_KEY is configured.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender builds a SendGridSender. apiKey must be non-empty;
// callers decide whether to construct this or SMTPSender.
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send implements EmailSender.
func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	toAddr := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toAddr, body, "")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
