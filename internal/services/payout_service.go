package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrTransferNotRetryable = errors.New("only retry_pending transfers can be resubmitted")
	ErrTransferNotEligible  = errors.New("booking is not eligible for a payout")
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
)

// TransferGateway submits payouts (StripeService)
type TransferGateway interface {
	CreateTransfer(ctx context.Context, t *models.Transfer) (string, error)
	IsConfigured() bool
}

// PayoutService owns the transfer ledger: pending creation, weekly submission and
// failure bookkeeping bounded by models.MaxTransferRetries.
type PayoutService struct {
	transfers TransferStore
	batches   PayoutBatchStore
	bookings  BookingStore
	fees      *FeeCalculator
	gateway   TransferGateway
	notifier  Notifier
	currency  string
	batchSize int
	logger    *logrus.Logger
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	transfers TransferStore,
	batches PayoutBatchStore,
	bookings BookingStore,
	fees *FeeCalculator,
	gateway TransferGateway,
	notifier Notifier,
	cfg config.PayoutConfig,
	logger *logrus.Logger,
) *PayoutService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	return &PayoutService{
		transfers: transfers,
		batches:   batches,
		bookings:  bookings,
		fees:      fees,
		gateway:   gateway,
		notifier:  notifier,
		currency:  cfg.Currency,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ============================================================================
// LEDGER
// ============================================================================

// CreatePendingTransfer records the payout owed for a completed, paid booking.
// Returns nil when the booking already has a transfer.
func (s *PayoutService) CreatePendingTransfer(ctx context.Context, booking *models.Booking) (*models.Transfer, error) {
	if !booking.HasDetailer() || !booking.IsPaid() {
		return nil, fmt.Errorf("booking %s: %w", booking.ID, ErrTransferNotEligible)
	}

	payout, fee, err := s.fees.CalculateDetailerPayout(ctx, booking.TotalAmount.Cents(), nil, booking.DetailerID)
	if err != nil {
		return nil, err
	}

	transfer := &models.Transfer{
		BookingID:        booking.ID,
		DetailerID:       *booking.DetailerID,
		AmountCents:      payout,
		PlatformFeeCents: fee,
		Currency:         s.currency,
		Status:           models.TransferStatusPending,
	}
	created, err := s.transfers.CreatePendingTransfer(ctx, transfer)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"detailer_id": transfer.DetailerID,
	})
	if !created {
		log.Info("Transfer already exists for booking")
		return nil, nil
	}
	log.WithFields(logrus.Fields{
		"transfer_id":        transfer.ID,
		"amount_cents":       payout,
		"platform_fee_cents": fee,
	}).Info("Pending transfer created")
	return transfer, nil
}

// LocateTransfer finds the transfer a gateway event refers to: metadata transfer_id
// first, then the gateway transfer id. Returns nil when neither matches.
func (s *PayoutService) LocateTransfer(ctx context.Context, data models.TransferData) (*models.Transfer, error) {
	if data.TransferID != nil {
		t, err := s.transfers.GetTransferByID(ctx, *data.TransferID)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	if data.ExternalTransferID == "" {
		return nil, nil
	}
	return s.transfers.GetTransferByExternalID(ctx, data.ExternalTransferID)
}

// MarkProcessing records that the gateway accepted the transfer
func (s *PayoutService) MarkProcessing(ctx context.Context, t *models.Transfer, externalID string) error {
	ok, err := s.transfers.MarkTransferProcessing(ctx, t.ID, externalID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"transfer_id": t.ID,
			"status":      t.Status,
		}).Info("Transfer not moved to processing, already settled")
	}
	return nil
}

// MarkSucceeded records a completed payout and notifies the detailer the first time
func (s *PayoutService) MarkSucceeded(ctx context.Context, t *models.Transfer, externalID string) error {
	ok, err := s.transfers.MarkTransferSucceeded(ctx, t.ID, externalID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"transfer_id":  t.ID,
		"detailer_id":  t.DetailerID,
		"amount_cents": t.AmountCents,
	}).Info("Transfer succeeded")

	if s.notifier != nil {
		req := models.NotificationRequest{
			DetailerID: t.DetailerID,
			Type:       models.NotificationPayoutProcessed,
			Data: map[string]string{
				"transfer_id": t.ID.String(),
				"booking_id":  t.BookingID.String(),
				"amount":      models.FromCents(t.AmountCents).String(),
				"currency":    t.Currency,
			},
		}
		if _, err := s.notifier.Notify(ctx, req); err != nil {
			s.logger.WithField("transfer_id", t.ID).WithError(err).Warn("Failed to send payout notification")
		}
	}
	return nil
}

// RecordFailure applies one failure to t. Returns the new state, or nil when nothing
// changed (already terminal, or a concurrent write moved retry_count first).
func (s *PayoutService) RecordFailure(ctx context.Context, t *models.Transfer, message string) (*models.TransferFailureState, error) {
	log := s.logger.WithFields(logrus.Fields{
		"transfer_id": t.ID,
		"retry_count": t.RetryCount,
	})

	if t.Status == models.TransferStatusSucceeded {
		log.Warn("Failure reported for a succeeded transfer, ignoring")
		return nil, nil
	}
	next, ok := models.NextTransferFailure(t.RetryCount, t.Status)
	if !ok {
		log.Info("Transfer already failed permanently, ignoring failure")
		return nil, nil
	}

	applied, err := s.transfers.RecordTransferFailure(ctx, t.ID, t.RetryCount, next, message)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Warn("Transfer failure not applied, transfer changed concurrently")
		return nil, nil
	}

	log = log.WithFields(logrus.Fields{
		"new_retry_count": next.RetryCount,
		"status":          next.Status,
		"error":           message,
	})
	if next.Exhausted {
		log.Error("Transfer retries exhausted, manual intervention required")
	} else {
		log.Warn("Transfer failed, queued for retry")
	}
	return &next, nil
}

// ============================================================================
// SUBMISSION
// ============================================================================

// submit sends t to the gateway and records the outcome. A retryable error may mean
// Stripe created the transfer anyway, so it does not count against the retry budget
// and the next submission carries the same idempotency key.
func (s *PayoutService) submit(ctx context.Context, t *models.Transfer) error {
	externalID, err := s.gateway.CreateTransfer(ctx, t)
	if err != nil {
		var recErr error
		if IsRetryableError(err) {
			recErr = s.recordAttemptError(ctx, t, StripeErrorMessage(err))
		} else {
			_, recErr = s.RecordFailure(ctx, t, StripeErrorMessage(err))
		}
		if recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}
	return s.MarkProcessing(ctx, t, externalID)
}

func (s *PayoutService) recordAttemptError(ctx context.Context, t *models.Transfer, message string) error {
	log := s.logger.WithFields(logrus.Fields{
		"transfer_id":     t.ID,
		"retry_count":     t.RetryCount,
		"idempotency_key": t.IdempotencyKey(),
		"error":           message,
	})

	applied, err := s.transfers.RecordTransferAttemptError(ctx, t.ID, t.RetryCount, message)
	if err != nil {
		return err
	}
	if !applied {
		log.Warn("Transfer attempt error not applied, transfer changed concurrently")
		return nil
	}
	log.Warn("Transfer submission outcome unknown, queued for resubmission with the same key")
	return nil
}

// RunWeeklyBatch claims unbatched pending transfers for the previous week and submits them
func (s *PayoutService) RunWeeklyBatch(ctx context.Context, now time.Time) (*models.BatchRunSummary, error) {
	if !s.gateway.IsConfigured() {
		return nil, ErrGatewayNotConfigured
	}

	start, end := models.PreviousPayoutWeek(now)
	batch, err := s.batches.UpsertWeeklyBatch(ctx, start, end)
	if err != nil {
		return nil, err
	}

	claimed, err := s.batches.ClaimPendingTransfers(ctx, batch.ID, end, s.batchSize)
	if err != nil {
		return nil, err
	}

	summary := &models.BatchRunSummary{
		BatchID:   &batch.ID,
		WeekStart: start.Format("2006-01-02"),
		Claimed:   claimed,
	}

	pending, err := s.transfers.ListBatchTransfers(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		t := &pending[i]
		if t.DestinationAccount == nil || *t.DestinationAccount == "" {
			s.logger.WithFields(logrus.Fields{
				"transfer_id": t.ID,
				"detailer_id": t.DetailerID,
			}).Warn("Detailer has no connected account, transfer left pending")
			summary.Skipped++
			continue
		}
		if err := s.submit(ctx, t); err != nil {
			summary.Failed++
			continue
		}
		summary.Submitted++
	}

	status, err := s.refreshBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	summary.Status = status

	s.logger.WithFields(logrus.Fields{
		"batch_id":   batch.ID,
		"week_start": summary.WeekStart,
		"claimed":    summary.Claimed,
		"submitted":  summary.Submitted,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
	}).Info("Weekly payout batch run complete")
	return summary, nil
}

// RetryTransfer resubmits one retry_pending transfer (operator action)
func (s *PayoutService) RetryTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	if !s.gateway.IsConfigured() {
		return nil, ErrGatewayNotConfigured
	}

	t, err := s.transfers.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrTransferNotFound)
	}
	if t.Status != models.TransferStatusRetryPending {
		return nil, fmt.Errorf("transfer is %s: %w", t.Status, ErrTransferNotRetryable)
	}

	submitErr := s.submit(ctx, t)

	updated, err := s.transfers.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if submitErr != nil {
		return updated, fmt.Errorf("resubmission failed: %w", submitErr)
	}
	return updated, nil
}

// RetryAllPending resubmits every retry_pending transfer. Returns (submitted, failed).
func (s *PayoutService) RetryAllPending(ctx context.Context) (int, int, error) {
	if !s.gateway.IsConfigured() {
		return 0, 0, ErrGatewayNotConfigured
	}

	list, err := s.transfers.ListTransfersByStatus(ctx, []models.TransferStatus{models.TransferStatusRetryPending}, s.batchSize)
	if err != nil {
		return 0, 0, err
	}

	submitted, failed := 0, 0
	for i := range list {
		if err := s.submit(ctx, &list[i]); err != nil {
			failed++
			continue
		}
		submitted++
	}
	return submitted, failed, nil
}

// ============================================================================
// MAINTENANCE
// ============================================================================

// BackfillCompletedBookings creates transfers for completed, paid bookings that have none
func (s *PayoutService) BackfillCompletedBookings(ctx context.Context) (int, error) {
	bookings, err := s.bookings.ListCompletedWithoutTransfer(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for i := range bookings {
		t, err := s.CreatePendingTransfer(ctx, &bookings[i])
		if err != nil {
			s.logger.WithField("booking_id", bookings[i].ID).WithError(err).Warn("Transfer backfill failed")
			errs = append(errs, err)
			continue
		}
		if t != nil {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// RefreshBatchStatuses recomputes the status of batches with transfers in flight
func (s *PayoutService) RefreshBatchStatuses(ctx context.Context) (int, error) {
	open, err := s.batches.ListOpenBatches(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	var errs []error
	for _, b := range open {
		status, err := s.refreshBatch(ctx, b.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if status == models.PayoutBatchCompleted || status == models.PayoutBatchPartial {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

func (s *PayoutService) refreshBatch(ctx context.Context, batchID uuid.UUID) (models.PayoutBatchStatus, error) {
	counts, err := s.batches.CountBatchTransfers(ctx, batchID)
	if err != nil {
		return "", err
	}
	status := models.BatchStatusFor(counts.Total, counts.Succeeded, counts.Failed)
	if err := s.batches.UpdateBatchStatus(ctx, batchID, status, *counts); err != nil {
		return "", err
	}
	return status, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// ListDetailerTransfers returns a detailer's transfers, newest first
func (s *PayoutService) ListDetailerTransfers(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error) {
	return s.transfers.ListTransfersByDetailer(ctx, detailerID, limit)
}

// ListFailedTransfers returns transfers that exhausted their retries
func (s *PayoutService) ListFailedTransfers(ctx context.Context, limit int) ([]models.Transfer, error) {
	return s.transfers.ListTransfersByStatus(ctx, []models.TransferStatus{models.TransferStatusFailed}, limit)
}
