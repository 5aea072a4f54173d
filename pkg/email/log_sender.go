package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LogSender writes messages to the log instead of sending them (development mode)
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a development sender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message and returns a synthetic id
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.ToEmail == "" {
		return "", ErrMissingRecipient
	}
	id := fmt.Sprintf("dev-email-%d", time.Now().UnixNano())
	s.logger.WithFields(logrus.Fields{
		"to":         msg.ToEmail,
		"subject":    msg.Subject,
		"message_id": id,
	}).Info("Email (dev mode, not sent)")
	return id, nil
}

// GetName returns the provider name
func (s *LogSender) GetName() string {
	return "log"
}
