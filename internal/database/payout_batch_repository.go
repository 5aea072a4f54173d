package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const batchColumns = `id, week_start, week_end, status, transfer_count, total_amount_cents,
	succeeded_count, failed_count, created_at, updated_at`

// PayoutBatchRepository handles weekly payout batches
type PayoutBatchRepository struct {
	db *sqlx.DB
}

// NewPayoutBatchRepository creates a new PayoutBatchRepository
func NewPayoutBatchRepository(db *sqlx.DB) *PayoutBatchRepository {
	return &PayoutBatchRepository{db: db}
}

// UpsertWeeklyBatch returns the batch for weekStart, creating it when missing
func (r *PayoutBatchRepository) UpsertWeeklyBatch(ctx context.Context, weekStart, weekEnd time.Time) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	query := `
		INSERT INTO weekly_payout_batches (id, week_start, week_end, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', NOW(), NOW())
		ON CONFLICT (week_start) DO UPDATE SET updated_at = NOW()
		RETURNING ` + batchColumns

	err := r.db.GetContext(ctx, &batch, query, uuid.New(), weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert payout batch: %w", err)
	}
	return &batch, nil
}

// ClaimPendingTransfers attaches up to limit unbatched pending transfers created
// before cutoff to the batch and refreshes the batch totals. Returns the number claimed.
func (r *PayoutBatchRepository) ClaimPendingTransfers(ctx context.Context, batchID uuid.UUID, cutoff time.Time, limit int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE transfers
		SET weekly_payout_batch_id = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM transfers
			WHERE status = 'pending'
			AND weekly_payout_batch_id IS NULL
			AND created_at < $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`, batchID, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to claim transfers: %w", err)
	}
	claimed, _ := result.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		UPDATE weekly_payout_batches b
		SET transfer_count = s.cnt,
			total_amount_cents = s.total,
			status = CASE WHEN s.cnt > 0 THEN 'processing' ELSE b.status END,
			updated_at = NOW()
		FROM (
			SELECT COUNT(*) AS cnt, COALESCE(SUM(amount_cents), 0) AS total
			FROM transfers WHERE weekly_payout_batch_id = $1
		) s
		WHERE b.id = $1`, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to update batch totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch claim: %w", err)
	}
	return int(claimed), nil
}

// ListOpenBatches returns batches that still have transfers in flight
func (r *PayoutBatchRepository) ListOpenBatches(ctx context.Context) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	query := `SELECT ` + batchColumns + ` FROM weekly_payout_batches
		WHERE status IN ('pending', 'processing') ORDER BY week_start`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("failed to list open batches: %w", err)
	}
	return batches, nil
}

// BatchCounts is the per-status transfer count of a batch
type BatchCounts struct {
	Total     int `db:"total"`
	Succeeded int `db:"succeeded"`
	Failed    int `db:"failed"`
}

// CountBatchTransfers tallies a batch's transfers by outcome
func (r *PayoutBatchRepository) CountBatchTransfers(ctx context.Context, batchID uuid.UUID) (*BatchCounts, error) {
	var counts BatchCounts
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'succeeded') AS succeeded,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM transfers
		WHERE weekly_payout_batch_id = $1`
	if err := r.db.GetContext(ctx, &counts, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to count batch transfers: %w", err)
	}
	return &counts, nil
}

// UpdateBatchStatus stores the derived status and counts
func (r *PayoutBatchRepository) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status models.PayoutBatchStatus, counts BatchCounts) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE weekly_payout_batches
		SET status = $2, succeeded_count = $3, failed_count = $4, updated_at = NOW()
		WHERE id = $1`,
		batchID, status, counts.Succeeded, counts.Failed)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return nil
}
