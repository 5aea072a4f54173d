package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with simple protocol mode
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// WebhookEndpoint identifies which signing secret verified the delivery
type WebhookEndpoint string

const (
	WebhookEndpointPrimary   WebhookEndpoint = "primary"   // platform account events
	WebhookEndpointSecondary WebhookEndpoint = "secondary" // Connect events
)

// WebhookOutcome is the processing result recorded for an event
type WebhookOutcome string

const (
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

// WebhookEvent is an immutable audit row for a handled gateway event
type WebhookEvent struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	GatewayEventID string          `json:"gateway_event_id" db:"gateway_event_id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Endpoint       WebhookEndpoint `json:"endpoint" db:"endpoint"`
	ObjectID       *string         `json:"object_id,omitempty" db:"object_id"`
	BookingID      *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`

	Outcome      WebhookOutcome `json:"outcome" db:"outcome"`
	IsDuplicate  bool           `json:"is_duplicate" db:"is_duplicate"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`

	ProcessingTimeMs *int `json:"processing_time_ms,omitempty" db:"processing_time_ms"`

	// Caller metadata
	IPAddress   *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   *string `json:"user_agent,omitempty" db:"user_agent"`
	ClientIsBot bool    `json:"client_is_bot" db:"client_is_bot"`
	Details     JSONB   `json:"details,omitempty" db:"details"`
	RawBody     *string `json:"raw_body,omitempty" db:"raw_body"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewWebhookEvent creates an audit entry with required fields
func NewWebhookEvent(gatewayEventID, eventType string, endpoint WebhookEndpoint) *WebhookEvent {
	return &WebhookEvent{
		ID:             uuid.New(),
		GatewayEventID: gatewayEventID,
		EventType:      eventType,
		Endpoint:       endpoint,
		Outcome:        WebhookOutcomeProcessed,
		CreatedAt:      time.Now(),
	}
}

// SetObject records the gateway object and booking the event refers to
func (we *WebhookEvent) SetObject(objectID string, bookingID *uuid.UUID) *WebhookEvent {
	if objectID != "" {
		we.ObjectID = &objectID
	}
	we.BookingID = bookingID
	return we
}

// SetError marks the event as failed
func (we *WebhookEvent) SetError(err error) *WebhookEvent {
	if err == nil {
		return we
	}
	msg := err.Error()
	we.ErrorMessage = &msg
	we.Outcome = WebhookOutcomeFailed
	return we
}

// SetClient records request metadata
func (we *WebhookEvent) SetClient(ip, userAgent string, isBot bool) *WebhookEvent {
	if ip != "" {
		we.IPAddress = &ip
	}
	if userAgent != "" {
		we.UserAgent = &userAgent
	}
	we.ClientIsBot = isBot
	return we
}

// SetDetails stores structured context, e.g. parsed client platform
func (we *WebhookEvent) SetDetails(details map[string]interface{}) *WebhookEvent {
	we.Details = JSONB(details)
	return we
}

// SetRawBody stores the verified request body
func (we *WebhookEvent) SetRawBody(body string) *WebhookEvent {
	we.RawBody = &body
	return we
}

// SetProcessingTime calculates and sets processing time
func (we *WebhookEvent) SetProcessingTime(startTime time.Time) *WebhookEvent {
	durationMs := int(time.Since(startTime).Milliseconds())
	we.ProcessingTimeMs = &durationMs
	return we
}

// MarkAsDuplicate marks this delivery as a replay of an already-recorded event
func (we *WebhookEvent) MarkAsDuplicate() *WebhookEvent {
	we.IsDuplicate = true
	return we
}
