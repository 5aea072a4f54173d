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

// distanceKm is the haversine distance between a detailer base and the booking ($4 lat, $5 lng).
// NULL when either side has no coordinates.
const distanceKm = `(6371 * 2 * ASIN(SQRT(
	POWER(SIN(RADIANS(d.base_latitude - $4::float8) / 2), 2) +
	COS(RADIANS($4::float8)) * COS(RADIANS(d.base_latitude)) *
	POWER(SIN(RADIANS(d.base_longitude - $5::float8) / 2), 2)
)))`

// eligibleDetailerQuery picks the nearest active detailer whose availability covers the slot
// and who has no overlapping active booking. Rows locked by a concurrent assignment are skipped.
// Slot bounds are timestamps (date + time): time + interval wraps at midnight, so a slot
// running into the next day would otherwise look like it ends early in the morning.
// Such a slot never fits inside one day's availability window.
//
//	$1 scheduled_date, $2 scheduled_time, $3 duration_minutes, $4 latitude, $5 longitude, $6 booking id
var eligibleDetailerQuery = fmt.Sprintf(`
	SELECT d.id
	FROM detailers d
	JOIN detailer_availability a ON a.detailer_id = d.id
	WHERE d.is_active = TRUE
	AND a.day_of_week = EXTRACT(DOW FROM $1::date)
	AND $1::date + a.start_time <= $1::date + $2::time
	AND $1::date + a.end_time >= $1::date + $2::time + make_interval(mins => $3::int)
	AND (%[1]s IS NULL OR %[1]s <= d.service_radius_km)
	AND NOT EXISTS (
		SELECT 1 FROM bookings o
		WHERE o.detailer_id = d.id
		AND o.id <> $6
		AND o.scheduled_date BETWEEN $1::date - 1 AND $1::date + 1
		AND o.status IN ('offered', 'accepted', 'in_progress')
		AND (o.scheduled_date + o.scheduled_time,
			o.scheduled_date + o.scheduled_time + make_interval(mins => o.duration_minutes))
			OVERLAPS ($1::date + $2::time, $1::date + $2::time + make_interval(mins => $3::int))
	)
	ORDER BY %[1]s ASC NULLS LAST, d.created_at ASC
	LIMIT 1
	FOR UPDATE OF d SKIP LOCKED`, distanceKm)

type assignmentSlot struct {
	Status          models.BookingStatus `db:"status"`
	DetailerID      *uuid.UUID           `db:"detailer_id"`
	ScheduledDate   time.Time            `db:"scheduled_date"`
	ScheduledTime   string               `db:"scheduled_time"`
	DurationMinutes int                  `db:"duration_minutes"`
	Latitude        *float64             `db:"latitude"`
	Longitude       *float64             `db:"longitude"`
}

// AssignmentRepository performs detailer assignment as single transactions
type AssignmentRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewAssignmentRepository creates a new AssignmentRepository
func NewAssignmentRepository(db *sqlx.DB, logger *logrus.Logger) *AssignmentRepository {
	return &AssignmentRepository{db: db, logger: logger}
}

// AssignEligibleDetailer locks the booking, picks an eligible detailer and sets
// detailer_id + status = offered in one transaction.
// Returns (nil, nil) when no detailer is eligible. A booking already offered with a
// detailer returns that detailer unchanged, flagged AlreadyOffered.
func (r *AssignmentRepository) AssignEligibleDetailer(ctx context.Context, bookingID uuid.UUID) (*models.Assignment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slot, err := lockBookingSlot(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	if slot.Status == models.BookingStatusOffered && slot.DetailerID != nil {
		return &models.Assignment{DetailerID: *slot.DetailerID, AlreadyOffered: true}, nil
	}
	if slot.Status != models.BookingStatusPaid || slot.DetailerID != nil {
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, slot.Status, ErrBookingNotAssignable)
	}

	var detailerID uuid.UUID
	err = tx.GetContext(ctx, &detailerID, eligibleDetailerQuery,
		slot.ScheduledDate.Format("2006-01-02"), slot.ScheduledTime, slot.DurationMinutes,
		slot.Latitude, slot.Longitude, bookingID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible detailer: %w", err)
	}

	note := "auto-assigned"
	if err := offerToDetailer(ctx, tx, bookingID, detailerID, models.BookingStatusPaid, models.SystemActor(), &note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}
	return &models.Assignment{DetailerID: detailerID}, nil
}

// AssignDetailer offers a booking to a specific detailer (operator action).
// The booking must be paid and unassigned, or already offered (reassignment).
func (r *AssignmentRepository) AssignDetailer(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slot, err := lockBookingSlot(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if slot.Status != models.BookingStatusPaid && slot.Status != models.BookingStatusOffered {
		return fmt.Errorf("booking %s is %s: %w", bookingID, slot.Status, ErrBookingNotAssignable)
	}

	var active bool
	err = tx.GetContext(ctx, &active, `SELECT is_active FROM detailers WHERE id = $1 FOR SHARE`, detailerID)
	if err == sql.ErrNoRows || (err == nil && !active) {
		return fmt.Errorf("detailer %s: %w", detailerID, ErrDetailerNotEligible)
	}
	if err != nil {
		return fmt.Errorf("failed to check detailer: %w", err)
	}

	note := "manually assigned"
	if err := offerToDetailer(ctx, tx, bookingID, detailerID, slot.Status, actor, &note); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	return nil
}

// ListPaidUnassigned returns paid bookings still waiting for a detailer, soonest first
func (r *AssignmentRepository) ListPaidUnassigned(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT id FROM bookings
		WHERE status = 'paid'
		AND payment_status = 'paid'
		AND detailer_id IS NULL
		ORDER BY scheduled_date, scheduled_time
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list unassigned bookings: %w", err)
	}
	return ids, nil
}

func lockBookingSlot(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (*assignmentSlot, error) {
	var slot assignmentSlot
	err := tx.GetContext(ctx, &slot, `
		SELECT status, detailer_id, scheduled_date, scheduled_time::text AS scheduled_time,
			duration_minutes, latitude, longitude
		FROM bookings
		WHERE id = $1
		FOR UPDATE`, bookingID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrBookingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &slot, nil
}

func offerToDetailer(ctx context.Context, tx *sqlx.Tx, bookingID, detailerID uuid.UUID, from models.BookingStatus, actor models.Actor, note *string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET detailer_id = $2, status = 'offered', updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		bookingID, detailerID, from)
	if err != nil {
		return fmt.Errorf("failed to assign detailer: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %s changed during assignment: %w", bookingID, ErrBookingNotAssignable)
	}
	return insertTimeline(ctx, tx, bookingID, from, models.BookingStatusOffered, actor, note)
}
