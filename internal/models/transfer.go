package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxTransferRetries is the number of failures after which a transfer stops retrying
const MaxTransferRetries = 3

// ============================================================================
// TRANSFER STATUSES
// ============================================================================

// TransferStatus is the lifecycle of a detailer payout transfer
type TransferStatus string

const (
	TransferStatusPending      TransferStatus = "pending"       // Created on completion, not yet submitted
	TransferStatusProcessing   TransferStatus = "processing"    // Submitted to the gateway
	TransferStatusSucceeded    TransferStatus = "succeeded"     // Gateway confirmed payout
	TransferStatusRetryPending TransferStatus = "retry_pending" // Failed, will be resubmitted
	TransferStatusFailed       TransferStatus = "failed"        // Retries exhausted
)

// IsValid reports whether s is a known transfer status
func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferStatusPending, TransferStatusProcessing, TransferStatusSucceeded,
		TransferStatusRetryPending, TransferStatusFailed:
		return true
	}
	return false
}

// IsFinal reports whether the transfer will not move again without an operator
func (s TransferStatus) IsFinal() bool {
	return s == TransferStatusSucceeded || s == TransferStatusFailed
}

// Submittable reports whether the payout sweep may send this transfer to the gateway
func (s TransferStatus) Submittable() bool {
	return s == TransferStatusPending || s == TransferStatusRetryPending
}

// Transfer is a payout owed to a detailer for one completed booking
type Transfer struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	BookingID          uuid.UUID      `json:"booking_id" db:"booking_id"`
	DetailerID         uuid.UUID      `json:"detailer_id" db:"detailer_id"`
	AmountCents        int64          `json:"amount_cents" db:"amount_cents"` // net payout
	PlatformFeeCents   int64          `json:"platform_fee_cents" db:"platform_fee_cents"`
	Currency           string         `json:"currency" db:"currency"`
	Status             TransferStatus `json:"status" db:"status"`
	StripeTransferID   *string        `json:"stripe_transfer_id,omitempty" db:"stripe_transfer_id"`
	RetryCount         int            `json:"retry_count" db:"retry_count"`
	ErrorMessage       *string        `json:"error_message,omitempty" db:"error_message"`
	PayoutBatchID      *uuid.UUID     `json:"weekly_payout_batch_id,omitempty" db:"weekly_payout_batch_id"`
	LastAttemptAt      *time.Time     `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
	DestinationAccount *string        `json:"-" db:"stripe_account_id"` // joined from detailers when listing for submission
}

// DisplayStatus is the label shown to detailers
func (t *Transfer) DisplayStatus() string {
	switch t.Status {
	case TransferStatusPending:
		if t.PayoutBatchID == nil {
			return "Awaiting next weekly batch"
		}
		return "Queued for payout"
	case TransferStatusProcessing:
		return "Processing"
	case TransferStatusSucceeded:
		return "Paid"
	case TransferStatusRetryPending:
		return "Retry pending"
	case TransferStatusFailed:
		return "Failed"
	}
	return string(t.Status)
}

// IdempotencyKey identifies one submission attempt to the gateway.
// A resubmission after a counted failure gets a new key; after an ambiguous
// error (timeout, 5xx) retry_count is unchanged and so is the key.
func (t *Transfer) IdempotencyKey() string {
	return fmt.Sprintf("transfer-%s-attempt-%d", t.ID, t.RetryCount)
}

// TransferFailureState is the outcome of applying one failure to a transfer
type TransferFailureState struct {
	RetryCount int
	Status     TransferStatus
	Exhausted  bool
}

// NextTransferFailure computes the state after a gateway failure.
// ok is false when the transfer is already permanently failed and must not change.
func NextTransferFailure(retryCount int, current TransferStatus) (next TransferFailureState, ok bool) {
	if current == TransferStatusFailed {
		return TransferFailureState{RetryCount: retryCount, Status: current, Exhausted: true}, false
	}
	count := retryCount + 1
	if count >= MaxTransferRetries {
		return TransferFailureState{RetryCount: count, Status: TransferStatusFailed, Exhausted: true}, true
	}
	return TransferFailureState{RetryCount: count, Status: TransferStatusRetryPending}, true
}

// ============================================================================
// WEEKLY PAYOUT BATCHES
// ============================================================================

// PayoutBatchStatus is the status of a weekly payout batch
type PayoutBatchStatus string

const (
	PayoutBatchPending    PayoutBatchStatus = "pending"
	PayoutBatchProcessing PayoutBatchStatus = "processing"
	PayoutBatchCompleted  PayoutBatchStatus = "completed"
	PayoutBatchPartial    PayoutBatchStatus = "partially_failed"
)

// PayoutBatch groups the transfers submitted for one week (Monday 00:00 UTC start)
type PayoutBatch struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	WeekStart      time.Time         `json:"week_start" db:"week_start"`
	WeekEnd        time.Time         `json:"week_end" db:"week_end"`
	Status         PayoutBatchStatus `json:"status" db:"status"`
	TransferCount  int               `json:"transfer_count" db:"transfer_count"`
	TotalCents     int64             `json:"total_amount_cents" db:"total_amount_cents"`
	SucceededCount int               `json:"succeeded_count" db:"succeeded_count"`
	FailedCount    int               `json:"failed_count" db:"failed_count"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// PreviousPayoutWeek returns the last full Monday-to-Monday week (UTC) before now
func PreviousPayoutWeek(now time.Time) (start, end time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sinceMonday := (int(midnight.Weekday()) + 6) % 7
	end = midnight.AddDate(0, 0, -sinceMonday)
	start = end.AddDate(0, 0, -7)
	return start, end
}

// BatchStatusFor derives a batch status from its transfer counts
func BatchStatusFor(total, succeeded, failed int) PayoutBatchStatus {
	switch {
	case total == 0:
		return PayoutBatchCompleted
	case succeeded == total:
		return PayoutBatchCompleted
	case succeeded+failed == total:
		return PayoutBatchPartial
	default:
		return PayoutBatchProcessing
	}
}

// BatchRunSummary reports the outcome of a payout sweep
type BatchRunSummary struct {
	BatchID   *uuid.UUID        `json:"batch_id,omitempty"`
	WeekStart string            `json:"week_start"`
	Claimed   int               `json:"claimed"`
	Submitted int               `json:"submitted"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Status    PayoutBatchStatus `json:"status"`
}
