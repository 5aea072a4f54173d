package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// transferSelect joins the detailer's connected account used as the payout destination
const transferSelect = `
	SELECT
		t.id, t.booking_id, t.detailer_id, t.amount_cents, t.platform_fee_cents, t.currency,
		t.status, t.stripe_transfer_id, t.retry_count, t.error_message, t.weekly_payout_batch_id,
		t.last_attempt_at, t.completed_at, t.created_at, t.updated_at,
		d.stripe_account_id
	FROM transfers t
	LEFT JOIN detailers d ON d.id = t.detailer_id`

// TransferRepository handles payout transfer rows
type TransferRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTransferRepository creates a new TransferRepository
func NewTransferRepository(db *sqlx.DB, logger *logrus.Logger) *TransferRepository {
	return &TransferRepository{db: db, logger: logger}
}

// ============================================================================
// CREATE / READ
// ============================================================================

// CreatePendingTransfer inserts a pending transfer for a booking.
// Returns false when the booking already has a transfer.
func (r *TransferRepository) CreatePendingTransfer(ctx context.Context, transfer *models.Transfer) (bool, error) {
	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}

	query := `
		INSERT INTO transfers (
			id, booking_id, detailer_id, amount_cents, platform_fee_cents, currency,
			status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, NOW(), NOW())
		ON CONFLICT (booking_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		transfer.ID, transfer.BookingID, transfer.DetailerID,
		transfer.AmountCents, transfer.PlatformFeeCents, transfer.Currency,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create transfer: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetTransferByID retrieves a transfer by ID
func (r *TransferRepository) GetTransferByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	return r.getOne(ctx, transferSelect+` WHERE t.id = $1`, id)
}

// GetTransferByExternalID retrieves a transfer by its gateway transfer id (tr_...)
func (r *TransferRepository) GetTransferByExternalID(ctx context.Context, externalID string) (*models.Transfer, error) {
	return r.getOne(ctx, transferSelect+` WHERE t.stripe_transfer_id = $1`, externalID)
}

func (r *TransferRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.GetContext(ctx, &transfer, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return &transfer, nil
}

// ListTransfersByDetailer returns a detailer's transfers, newest first
func (r *TransferRepository) ListTransfersByDetailer(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error) {
	var transfers []models.Transfer
	query := transferSelect + ` WHERE t.detailer_id = $1 ORDER BY t.created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &transfers, query, detailerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list detailer transfers: %w", err)
	}
	return transfers, nil
}

// ListTransfersByStatus returns transfers in any of the given statuses, oldest first
func (r *TransferRepository) ListTransfersByStatus(ctx context.Context, statuses []models.TransferStatus, limit int) ([]models.Transfer, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var transfers []models.Transfer
	query := transferSelect + ` WHERE t.status = ANY($1) ORDER BY t.updated_at ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &transfers, query, pq.Array(names), limit); err != nil {
		return nil, fmt.Errorf("failed to list transfers by status: %w", err)
	}
	return transfers, nil
}

// ListBatchTransfers returns the submittable transfers claimed by a batch
func (r *TransferRepository) ListBatchTransfers(ctx context.Context, batchID uuid.UUID) ([]models.Transfer, error) {
	var transfers []models.Transfer
	query := transferSelect + `
		WHERE t.weekly_payout_batch_id = $1
		AND t.status = 'pending'
		ORDER BY t.created_at`
	if err := r.db.SelectContext(ctx, &transfers, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list batch transfers: %w", err)
	}
	return transfers, nil
}

// ============================================================================
// STATUS WRITES (conditional, safe under redelivery and reordering)
// ============================================================================

// MarkTransferProcessing records submission. A transfer that already succeeded or
// permanently failed is never moved back.
func (r *TransferRepository) MarkTransferProcessing(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	query := `
		UPDATE transfers
		SET status = 'processing',
			stripe_transfer_id = COALESCE(NULLIF($2, ''), stripe_transfer_id),
			last_attempt_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		AND status IN ('pending', 'retry_pending', 'processing')`

	result, err := r.db.ExecContext(ctx, query, id, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to mark transfer processing: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkTransferSucceeded records a confirmed payout. Returns false when it was already succeeded.
func (r *TransferRepository) MarkTransferSucceeded(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	query := `
		UPDATE transfers
		SET status = 'succeeded',
			stripe_transfer_id = COALESCE(NULLIF($2, ''), stripe_transfer_id),
			error_message = NULL,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		AND status <> 'succeeded'`

	result, err := r.db.ExecContext(ctx, query, id, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to mark transfer succeeded: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordTransferAttemptError parks a transfer whose submission outcome is unknown
// (timeout, 5xx, rate limit). retry_count is left alone so the resubmission reuses
// the same idempotency key.
func (r *TransferRepository) RecordTransferAttemptError(ctx context.Context, id uuid.UUID, observedRetryCount int, message string) (bool, error) {
	query := `
		UPDATE transfers
		SET status = 'retry_pending',
			error_message = $3,
			last_attempt_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		AND retry_count = $2
		AND status IN ('pending', 'retry_pending')`

	result, err := r.db.ExecContext(ctx, query, id, observedRetryCount, message)
	if err != nil {
		return false, fmt.Errorf("failed to record transfer attempt error: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordTransferFailure applies a failure computed by models.NextTransferFailure.
// The write is conditional on the retry_count the caller observed, so two concurrent
// failures cannot both count from the same value.
func (r *TransferRepository) RecordTransferFailure(ctx context.Context, id uuid.UUID, observedRetryCount int, next models.TransferFailureState, message string) (bool, error) {
	query := `
		UPDATE transfers
		SET status = $3,
			retry_count = $4,
			error_message = $5,
			last_attempt_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		AND retry_count = $2
		AND status NOT IN ('failed', 'succeeded')`

	result, err := r.db.ExecContext(ctx, query, id, observedRetryCount, next.Status, next.RetryCount, message)
	if err != nil {
		return false, fmt.Errorf("failed to record transfer failure: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
