package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecordStatus is the status of a payment row (one per booking)
type PaymentRecordStatus string

const (
	PaymentRecordPaid   PaymentRecordStatus = "paid"
	PaymentRecordFailed PaymentRecordStatus = "failed"
)

// Payment mirrors the gateway payment intent for a booking.
// At most one row exists per booking; webhook replays upsert it.
type Payment struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	BookingID             uuid.UUID           `json:"booking_id" db:"booking_id"`
	AmountCents           int64               `json:"amount_cents" db:"amount_cents"`
	Currency              string              `json:"currency" db:"currency"`
	Status                PaymentRecordStatus `json:"status" db:"status"`
	StripePaymentIntentID string              `json:"stripe_payment_intent_id" db:"stripe_payment_intent_id"`
	StripeChargeID        *string             `json:"stripe_charge_id,omitempty" db:"stripe_charge_id"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}
