package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const detailerColumns = `id, user_id, organization_id, full_name, email, phone, is_active,
	pricing_model, platform_fee_percent, stripe_account_id, stripe_subscription_id,
	subscription_status, base_latitude, base_longitude, service_radius_km, created_at, updated_at`

// DetailerRepository handles detailer database operations
type DetailerRepository struct {
	db *sqlx.DB
}

// NewDetailerRepository creates a new DetailerRepository
func NewDetailerRepository(db *sqlx.DB) *DetailerRepository {
	return &DetailerRepository{db: db}
}

// GetDetailerByID retrieves a detailer by ID
func (r *DetailerRepository) GetDetailerByID(ctx context.Context, id uuid.UUID) (*models.Detailer, error) {
	return r.getOne(ctx, `SELECT `+detailerColumns+` FROM detailers WHERE id = $1`, id)
}

// GetDetailerByUserID retrieves the detailer record of a user account
func (r *DetailerRepository) GetDetailerByUserID(ctx context.Context, userID uuid.UUID) (*models.Detailer, error) {
	return r.getOne(ctx, `SELECT `+detailerColumns+` FROM detailers WHERE user_id = $1`, userID)
}

// GetDetailerBySubscriptionID retrieves the detailer linked to a gateway subscription
func (r *DetailerRepository) GetDetailerBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Detailer, error) {
	return r.getOne(ctx, `SELECT `+detailerColumns+` FROM detailers WHERE stripe_subscription_id = $1`, subscriptionID)
}

func (r *DetailerRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Detailer, error) {
	var detailer models.Detailer
	err := r.db.GetContext(ctx, &detailer, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detailer: %w", err)
	}
	return &detailer, nil
}

// SetSubscriptionIfUnset links a subscription to a detailer that has none (first write wins).
// Status updates for the already-linked subscription are applied too.
// Returns false when a different subscription is already linked or the detailer is missing.
func (r *DetailerRepository) SetSubscriptionIfUnset(ctx context.Context, detailerID uuid.UUID, subscriptionID, status string) (bool, error) {
	query := `
		UPDATE detailers
		SET stripe_subscription_id = $2,
			subscription_status = NULLIF($3, ''),
			updated_at = NOW()
		WHERE id = $1
		AND (stripe_subscription_id IS NULL OR stripe_subscription_id = $2)`

	result, err := r.db.ExecContext(ctx, query, detailerID, subscriptionID, status)
	if err != nil {
		return false, fmt.Errorf("failed to set detailer subscription: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ClearSubscription unlinks whatever subscription the detailer has
func (r *DetailerRepository) ClearSubscription(ctx context.Context, detailerID uuid.UUID) (bool, error) {
	query := `
		UPDATE detailers
		SET stripe_subscription_id = NULL,
			subscription_status = 'canceled',
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, detailerID)
	if err != nil {
		return false, fmt.Errorf("failed to clear detailer subscription: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

type notificationProfileRow struct {
	DetailerID     uuid.UUID `db:"detailer_id"`
	FullName       string    `db:"full_name"`
	Email          *string   `db:"email"`
	Phone          *string   `db:"phone"`
	HasPreferences bool      `db:"has_preferences"`
	models.NotificationPreferences
}

// GetNotificationProfile returns contact details and opt-ins for a detailer.
// Detailers without a preferences row get the defaults.
func (r *DetailerRepository) GetNotificationProfile(ctx context.Context, detailerID uuid.UUID) (*models.NotificationProfile, error) {
	var row notificationProfileRow
	query := `
		SELECT
			d.id AS detailer_id, d.full_name, d.email, d.phone,
			p.detailer_id IS NOT NULL AS has_preferences,
			COALESCE(p.new_booking_sms, FALSE) AS new_booking_sms,
			COALESCE(p.new_booking_email, FALSE) AS new_booking_email,
			COALESCE(p.booking_cancelled_sms, FALSE) AS booking_cancelled_sms,
			COALESCE(p.booking_cancelled_email, FALSE) AS booking_cancelled_email,
			COALESCE(p.booking_reminder_sms, FALSE) AS booking_reminder_sms,
			COALESCE(p.booking_reminder_email, FALSE) AS booking_reminder_email,
			COALESCE(p.payout_processed_sms, FALSE) AS payout_processed_sms,
			COALESCE(p.payout_processed_email, FALSE) AS payout_processed_email
		FROM detailers d
		LEFT JOIN detailer_notification_preferences p ON p.detailer_id = d.id
		WHERE d.id = $1`

	err := r.db.GetContext(ctx, &row, query, detailerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification profile: %w", err)
	}

	profile := &models.NotificationProfile{
		DetailerID:  row.DetailerID,
		FullName:    row.FullName,
		Email:       row.Email,
		Phone:       row.Phone,
		Preferences: row.NotificationPreferences,
	}
	if !row.HasPreferences {
		profile.Preferences = models.DefaultNotificationPreferences()
	}
	return profile, nil
}
