package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LogGateway writes messages to the log instead of sending them (development mode)
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a development gateway
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message and returns a synthetic id
func (g *LogGateway) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrMissingRecipient
	}
	id := fmt.Sprintf("dev-sms-%d", time.Now().UnixNano())
	g.logger.WithFields(logrus.Fields{
		"to":         msg.To,
		"from":       msg.From,
		"body":       msg.Body,
		"message_id": id,
	}).Info("SMS (dev mode, not sent)")
	return id, nil
}

// GetName returns the gateway name
func (g *LogGateway) GetName() string {
	return "log"
}
