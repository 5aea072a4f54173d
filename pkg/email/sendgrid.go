package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrMissingRecipient is returned when a message has no destination address
var ErrMissingRecipient = errors.New("email recipient is required")

// sendClient is the part of the SendGrid client the sender uses
type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds configuration for the SendGrid sender
type SendGridConfig struct {
	APIKey      string
	FromEmail   string
	FromName    string
	SandboxMode bool
}

// SendGridSender implements email delivery via SendGrid v3 mail send
type SendGridSender struct {
	client  sendClient
	from    *mail.Email
	sandbox bool
}

// NewSendGridSender creates a new SendGrid sender
func NewSendGridSender(config SendGridConfig) *SendGridSender {
	return &SendGridSender{
		client:  sendgrid.NewSendClient(config.APIKey),
		from:    mail.NewEmail(config.FromName, config.FromEmail),
		sandbox: config.SandboxMode,
	}
}

// Send delivers msg and returns the X-Message-Id assigned by SendGrid
func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.ToEmail == "" {
		return "", ErrMissingRecipient
	}

	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	m := mail.NewSingleEmail(s.from, msg.Subject, to, msg.PlainText, msg.HTML)
	if s.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		m.MailSettings = ms
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return "", fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

// GetName returns the provider name
func (s *SendGridSender) GetName() string {
	return "sendgrid"
}
