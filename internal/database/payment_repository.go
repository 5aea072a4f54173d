package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PaymentRepository handles payment rows (one per booking)
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// UpsertPayment inserts or replaces the payment for a booking, keyed on booking_id.
// A known charge id is never cleared by a later event without one.
func (r *PaymentRepository) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	query := `
		INSERT INTO payments (
			id, booking_id, amount_cents, currency, status,
			stripe_payment_intent_id, stripe_charge_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (booking_id) DO UPDATE SET
			amount_cents = EXCLUDED.amount_cents,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id,
			stripe_charge_id = COALESCE(EXCLUDED.stripe_charge_id, payments.stripe_charge_id),
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.BookingID, payment.AmountCents, payment.Currency, payment.Status,
		payment.StripePaymentIntentID, payment.StripeChargeID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// GetPaymentByBookingID retrieves the payment for a booking
func (r *PaymentRepository) GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `
		SELECT id, booking_id, amount_cents, currency, status,
			stripe_payment_intent_id, stripe_charge_id, created_at, updated_at
		FROM payments
		WHERE booking_id = $1`

	err := r.db.GetContext(ctx, &payment, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}
