package notifier

import "github.com/edevardHvide/golf-availability-bot/internal/config"

const fromName = "Golftider"

// NewEmailSender picks SendGridSender or SMTPSender based on whether a
// SendGrid API key is configured, so the rest of the codebase never
// branches on transport.
func NewEmailSender(cfg config.EmailConfig) EmailSender {
	if cfg.SendGridAPIKey != "" {
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromEmail, fromName)
	}
	return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPPassword)
}
