package sms

import "context"

// Message is a single outbound SMS
type Message struct {
	To   string // E.164
	From string // sender number or alphanumeric id
	Body string
}

// Gateway defines the interface for sending SMS messages
type Gateway interface {
	// Send delivers one message and returns the provider message id
	Send(ctx context.Context, msg Message) (string, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}
