package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// WebhookEventRepository handles the gateway event audit log
type WebhookEventRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sqlx.DB, logger *logrus.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// Log writes an audit row for a handled event
func (r *WebhookEventRepository) Log(ctx context.Context, event *models.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("webhook event cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO webhook_events (
			id, gateway_event_id, event_type, endpoint, object_id, booking_id,
			outcome, is_duplicate, error_message, processing_time_ms,
			ip_address, user_agent, client_is_bot, details, raw_body, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.GatewayEventID, event.EventType, event.Endpoint, event.ObjectID, event.BookingID,
		event.Outcome, event.IsDuplicate, event.ErrorMessage, event.ProcessingTimeMs,
		event.IPAddress, event.UserAgent, event.ClientIsBot, event.Details, event.RawBody, event.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"gateway_event_id": event.GatewayEventID,
			"event_type":       event.EventType,
		}).Error("Failed to write webhook audit row")
		return fmt.Errorf("failed to log webhook event: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":         event.ID,
		"gateway_event_id": event.GatewayEventID,
		"event_type":       event.EventType,
	}).Debug("Webhook event logged")

	return nil
}

// HasProcessed reports whether this gateway event was already handled successfully
func (r *WebhookEventRepository) HasProcessed(ctx context.Context, gatewayEventID string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM webhook_events
		WHERE gateway_event_id = $1
		AND outcome = 'processed'
		AND is_duplicate = FALSE`

	if err := r.db.GetContext(ctx, &count, query, gatewayEventID); err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return count > 0, nil
}

// ListRecentFailures returns failed events from the last hours, newest first
func (r *WebhookEventRepository) ListRecentFailures(ctx context.Context, hours int, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	query := `
		SELECT id, gateway_event_id, event_type, endpoint, object_id, booking_id,
			outcome, is_duplicate, error_message, processing_time_ms,
			ip_address, user_agent, client_is_bot, details, created_at
		FROM webhook_events
		WHERE outcome = 'failed'
		AND created_at > NOW() - make_interval(hours => $1)
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &events, query, hours, limit); err != nil {
		return nil, fmt.Errorf("failed to list webhook failures: %w", err)
	}
	return events, nil
}
