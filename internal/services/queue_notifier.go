package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// QueueNotifier hands notifications to the notifier worker through RabbitMQ
type QueueNotifier struct {
	publisher EventPublisher
	logger    *logrus.Logger
}

// NewQueueNotifier creates a notifier that publishes instead of sending
func NewQueueNotifier(publisher EventPublisher, logger *logrus.Logger) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, logger: logger}
}

// Notify publishes the request. The returned result is empty: delivery happens in the worker.
func (q *QueueNotifier) Notify(ctx context.Context, req models.NotificationRequest) (*models.NotificationResult, error) {
	if !req.Type.IsValid() {
		return nil, ErrUnknownNotificationType
	}
	if err := q.publisher.PublishJSON(ctx, RoutingDetailerNotification, req); err != nil {
		return nil, err
	}
	q.logger.WithFields(logrus.Fields{
		"detailer_id":       req.DetailerID,
		"notification_type": req.Type,
	}).Debug("Notification queued")
	return &models.NotificationResult{}, nil
}

// NotificationConsumer delivers queued notifications
type NotificationConsumer struct {
	notifier Notifier
	logger   *logrus.Logger
}

// NewNotificationConsumer creates a consumer that sends through notifier
func NewNotificationConsumer(notifier Notifier, logger *logrus.Logger) *NotificationConsumer {
	return &NotificationConsumer{notifier: notifier, logger: logger}
}

// Run processes deliveries until the channel closes or ctx is done
func (c *NotificationConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. Malformed or undeliverable requests are dropped;
// lookup and transport errors are requeued.
func (c *NotificationConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.WithField("routing_key", d.RoutingKey)

	var req models.NotificationRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		log.WithError(err).Warn("Dropping malformed notification message")
		_ = d.Nack(false, false)
		return
	}

	_, err := c.notifier.Notify(ctx, req)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrUnknownNotificationType), errors.Is(err, ErrDetailerNotFound):
		log.WithError(err).Warn("Dropping undeliverable notification")
		_ = d.Ack(false)
	default:
		log.WithError(err).Error("Notification failed, requeueing")
		_ = d.Nack(false, !d.Redelivered)
	}
}
