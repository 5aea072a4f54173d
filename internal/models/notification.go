package models

import "github.com/google/uuid"

// NotificationType is the kind of detailer notification
type NotificationType string

const (
	NotificationNewBooking       NotificationType = "new_booking"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingReminder  NotificationType = "booking_reminder"
	NotificationPayoutProcessed  NotificationType = "payout_processed"
)

// IsValid reports whether t is a known notification type
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationNewBooking, NotificationBookingCancelled,
		NotificationBookingReminder, NotificationPayoutProcessed:
		return true
	}
	return false
}

// NotificationChannel is a delivery channel
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// NotificationRequest asks the dispatcher to notify one detailer.
// Data carries template fields such as booking_id, service_name, scheduled_date, amount.
type NotificationRequest struct {
	DetailerID uuid.UUID         `json:"detailer_id" binding:"required"`
	Type       NotificationType  `json:"type" binding:"required"`
	Data       map[string]string `json:"data,omitempty"`
}

// NotificationResult reports per-channel delivery. A channel that was not
// attempted (opted out or no contact) has Sent=false and no error.
type NotificationResult struct {
	SMSSent         bool    `json:"sms_sent"`
	EmailSent       bool    `json:"email_sent"`
	SMSProviderID   *string `json:"sms_provider_id,omitempty"`
	EmailProviderID *string `json:"email_provider_id,omitempty"`
	SMSError        *string `json:"sms_error,omitempty"`
	EmailError      *string `json:"email_error,omitempty"`
}

// AnySent reports whether at least one channel delivered
func (r NotificationResult) AnySent() bool {
	return r.SMSSent || r.EmailSent
}
