package models

import (
	"time"

	"github.com/google/uuid"
)

// PricingModel is how the platform earns from a detailer
type PricingModel string

const (
	PricingModelPercentage   PricingModel = "percentage"   // platform fee per booking
	PricingModelSubscription PricingModel = "subscription" // flat subscription, processing fee only
)

// Detailer is a service provider
type Detailer struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	UserID               uuid.UUID    `json:"user_id" db:"user_id"`
	OrganizationID       *uuid.UUID   `json:"organization_id,omitempty" db:"organization_id"`
	FullName             string       `json:"full_name" db:"full_name"`
	Email                *string      `json:"email,omitempty" db:"email"`
	Phone                *string      `json:"phone,omitempty" db:"phone"`
	IsActive             bool         `json:"is_active" db:"is_active"`
	PricingModel         PricingModel `json:"pricing_model" db:"pricing_model"`
	PlatformFeePercent   *float64     `json:"platform_fee_percent,omitempty" db:"platform_fee_percent"` // per-detailer override
	StripeAccountID      *string      `json:"stripe_account_id,omitempty" db:"stripe_account_id"`
	StripeSubscriptionID *string      `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	SubscriptionStatus   *string      `json:"subscription_status,omitempty" db:"subscription_status"`
	BaseLatitude         *float64     `json:"base_latitude,omitempty" db:"base_latitude"`
	BaseLongitude        *float64     `json:"base_longitude,omitempty" db:"base_longitude"`
	ServiceRadiusKm      float64      `json:"service_radius_km" db:"service_radius_km"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
}

// CanReceivePayouts reports whether the detailer has a connected gateway account
func (d *Detailer) CanReceivePayouts() bool {
	return d.StripeAccountID != nil && *d.StripeAccountID != ""
}

// NotificationPreferences are per-detailer opt-ins by type and channel
type NotificationPreferences struct {
	NewBookingSMS         bool `json:"new_booking_sms" db:"new_booking_sms"`
	NewBookingEmail       bool `json:"new_booking_email" db:"new_booking_email"`
	BookingCancelledSMS   bool `json:"booking_cancelled_sms" db:"booking_cancelled_sms"`
	BookingCancelledEmail bool `json:"booking_cancelled_email" db:"booking_cancelled_email"`
	BookingReminderSMS    bool `json:"booking_reminder_sms" db:"booking_reminder_sms"`
	BookingReminderEmail  bool `json:"booking_reminder_email" db:"booking_reminder_email"`
	PayoutProcessedSMS    bool `json:"payout_processed_sms" db:"payout_processed_sms"`
	PayoutProcessedEmail  bool `json:"payout_processed_email" db:"payout_processed_email"`
}

// DefaultNotificationPreferences applies when a detailer has no preferences row
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		NewBookingSMS:         true,
		NewBookingEmail:       true,
		BookingCancelledSMS:   true,
		BookingCancelledEmail: true,
		BookingReminderSMS:    true,
		BookingReminderEmail:  true,
		PayoutProcessedSMS:    false,
		PayoutProcessedEmail:  true,
	}
}

// Allows reports whether the detailer opted into this type on this channel
func (p NotificationPreferences) Allows(t NotificationType, ch NotificationChannel) bool {
	sms := ch == ChannelSMS
	switch t {
	case NotificationNewBooking:
		return pick(sms, p.NewBookingSMS, p.NewBookingEmail)
	case NotificationBookingCancelled:
		return pick(sms, p.BookingCancelledSMS, p.BookingCancelledEmail)
	case NotificationBookingReminder:
		return pick(sms, p.BookingReminderSMS, p.BookingReminderEmail)
	case NotificationPayoutProcessed:
		return pick(sms, p.PayoutProcessedSMS, p.PayoutProcessedEmail)
	}
	return false
}

func pick(sms, smsValue, emailValue bool) bool {
	if sms {
		return smsValue
	}
	return emailValue
}

// NotificationProfile is what the dispatcher needs to reach a detailer
type NotificationProfile struct {
	DetailerID  uuid.UUID `db:"detailer_id"`
	FullName    string    `db:"full_name"`
	Email       *string   `db:"email"`
	Phone       *string   `db:"phone"`
	Preferences NotificationPreferences
}
