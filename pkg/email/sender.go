package email

import "context"

// Message is a single outbound email
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Sender defines the interface for sending email
type Sender interface {
	// Send delivers one message and returns the provider message id
	Send(ctx context.Context, msg Message) (string, error)

	// GetName returns the name of the email provider implementation
	GetName() string
}
