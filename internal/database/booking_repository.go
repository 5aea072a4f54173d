package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// bookingSelect reads a booking with its service name.
// scheduled_time is cast to text because lib/pq decodes TIME into time.Time.
const bookingSelect = `
	SELECT
		b.id, b.receipt_id, b.user_id, b.detailer_id, b.service_id, s.name AS service_name,
		b.vehicle_id, b.organization_id, b.status, b.payment_status,
		b.service_price, b.addons_total, b.tax_amount, b.total_amount,
		b.scheduled_date, b.scheduled_time::text AS scheduled_time, b.duration_minutes,
		b.service_address, b.latitude, b.longitude,
		b.stripe_payment_intent_id, b.reminder_sent_at, b.created_at, b.updated_at
	FROM bookings b
	LEFT JOIN services s ON s.id = b.service_id`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB, logger *logrus.Logger) *BookingRepository {
	return &BookingRepository{db: db, logger: logger}
}

// ============================================================================
// READS
// ============================================================================

// GetBookingByID retrieves a booking by ID
func (r *BookingRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, bookingSelect+` WHERE b.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListBookingTimeline returns the status history of a booking, oldest first
func (r *BookingRepository) ListBookingTimeline(ctx context.Context, bookingID uuid.UUID) ([]models.BookingTimelineEntry, error) {
	var entries []models.BookingTimelineEntry
	query := `
		SELECT id, booking_id, from_status, to_status, actor_role, actor_id, note, created_at
		FROM booking_timeline
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &entries, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list booking timeline: %w", err)
	}
	return entries, nil
}

// ListBookingsForReminder returns assigned bookings scheduled on date that have not been reminded
func (r *BookingRepository) ListBookingsForReminder(ctx context.Context, date time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := bookingSelect + `
		WHERE b.scheduled_date = $1::date
		AND b.status IN ('offered', 'accepted')
		AND b.detailer_id IS NOT NULL
		AND b.reminder_sent_at IS NULL
		ORDER BY b.scheduled_time
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &bookings, query, date.Format("2006-01-02"), limit); err != nil {
		return nil, fmt.Errorf("failed to list bookings for reminder: %w", err)
	}
	return bookings, nil
}

// ListCompletedWithoutTransfer returns completed, paid bookings that have no transfer row
func (r *BookingRepository) ListCompletedWithoutTransfer(ctx context.Context, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := bookingSelect + `
		LEFT JOIN transfers t ON t.booking_id = b.id
		WHERE b.status = 'completed'
		AND b.payment_status = 'paid'
		AND b.detailer_id IS NOT NULL
		AND t.id IS NULL
		ORDER BY b.updated_at
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &bookings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list completed bookings without transfer: %w", err)
	}
	return bookings, nil
}

// ListAssignmentInconsistencies returns bookings whose status disagrees with detailer_id:
// paid with a detailer set, or offered without one.
func (r *BookingRepository) ListAssignmentInconsistencies(ctx context.Context, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := bookingSelect + `
		WHERE (b.status = 'paid' AND b.detailer_id IS NOT NULL)
		OR (b.status = 'offered' AND b.detailer_id IS NULL)
		ORDER BY b.updated_at
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &bookings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list assignment inconsistencies: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// PAYMENT AXIS (written by the webhook reconciler, never touches status)
// ============================================================================

// MarkPaymentSucceeded sets payment_status = paid and records the intent id.
// Returns false when the booking does not exist.
func (r *BookingRepository) MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, paymentIntentID string) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = 'paid',
			stripe_payment_intent_id = $2,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking paid: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// UpdatePaymentStatus sets payment_status, keeping the stored intent id when none is given
func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paymentIntentID string) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = $2,
			stripe_payment_intent_id = COALESCE(NULLIF($3, ''), stripe_payment_intent_id),
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkReminderSent stamps reminder_sent_at so the reminder job sends once
func (r *BookingRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET reminder_sent_at = NOW() WHERE id = $1 AND reminder_sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// ============================================================================
// WORKFLOW AXIS
// ============================================================================

// UpdateBookingStatus moves a booking from one status to another and writes a timeline row.
// The update is conditional on the observed status, and on detailer_id being set when the
// target status requires one. Returns false when no row matched.
func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, actor models.Actor, note *string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1
		AND status = $2
		AND ($4 = FALSE OR detailer_id IS NOT NULL)`

	result, err := tx.ExecContext(ctx, query, id, from, to, to.RequiresDetailer())
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	if err := insertTimeline(ctx, tx, id, from, to, actor, note); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit status change: %w", err)
	}
	return true, nil
}

// ResetUnassignedOffer moves an offered booking with no detailer back to paid
func (r *BookingRepository) ResetUnassignedOffer(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'paid', updated_at = NOW()
		WHERE id = $1 AND status = 'offered' AND detailer_id IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("failed to reset unassigned offer: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	note := "reset: offered without detailer"
	if err := insertTimeline(ctx, tx, id, models.BookingStatusOffered, models.BookingStatusPaid, models.SystemActor(), &note); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit offer reset: %w", err)
	}
	return true, nil
}

func insertTimeline(ctx context.Context, exec sqlx.ExecerContext, bookingID uuid.UUID, from, to models.BookingStatus, actor models.Actor, note *string) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO booking_timeline (id, booking_id, from_status, to_status, actor_role, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		uuid.New(), bookingID, from, to, actor.Role, actor.AuditID(), note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking timeline: %w", err)
	}
	return nil
}
