package services

import (
	"context"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
)

// Store interfaces are satisfied by the repositories in internal/database.
// Services depend on these so tests can run against in-memory fakes.

// BookingStore reads bookings and writes both status axes
type BookingStore interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookingTimeline(ctx context.Context, bookingID uuid.UUID) ([]models.BookingTimelineEntry, error)
	ListBookingsForReminder(ctx context.Context, date time.Time, limit int) ([]models.Booking, error)
	ListCompletedWithoutTransfer(ctx context.Context, limit int) ([]models.Booking, error)
	ListAssignmentInconsistencies(ctx context.Context, limit int) ([]models.Booking, error)
	MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, paymentIntentID string) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paymentIntentID string) (bool, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, actor models.Actor, note *string) (bool, error)
	ResetUnassignedOffer(ctx context.Context, id uuid.UUID) (bool, error)
}

// AssignmentStore runs assignment transactions
type AssignmentStore interface {
	AssignEligibleDetailer(ctx context.Context, bookingID uuid.UUID) (*models.Assignment, error)
	AssignDetailer(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error
	ListPaidUnassigned(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// PaymentStore upserts the per-booking payment row
type PaymentStore interface {
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
}

// TransferStore holds payout transfers
type TransferStore interface {
	CreatePendingTransfer(ctx context.Context, transfer *models.Transfer) (bool, error)
	GetTransferByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	GetTransferByExternalID(ctx context.Context, externalID string) (*models.Transfer, error)
	ListTransfersByDetailer(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error)
	ListTransfersByStatus(ctx context.Context, statuses []models.TransferStatus, limit int) ([]models.Transfer, error)
	ListBatchTransfers(ctx context.Context, batchID uuid.UUID) ([]models.Transfer, error)
	MarkTransferProcessing(ctx context.Context, id uuid.UUID, externalID string) (bool, error)
	MarkTransferSucceeded(ctx context.Context, id uuid.UUID, externalID string) (bool, error)
	RecordTransferFailure(ctx context.Context, id uuid.UUID, observedRetryCount int, next models.TransferFailureState, message string) (bool, error)
	RecordTransferAttemptError(ctx context.Context, id uuid.UUID, observedRetryCount int, message string) (bool, error)
}

// PayoutBatchStore holds weekly payout batches
type PayoutBatchStore interface {
	UpsertWeeklyBatch(ctx context.Context, weekStart, weekEnd time.Time) (*models.PayoutBatch, error)
	ClaimPendingTransfers(ctx context.Context, batchID uuid.UUID, cutoff time.Time, limit int) (int, error)
	ListOpenBatches(ctx context.Context) ([]models.PayoutBatch, error)
	CountBatchTransfers(ctx context.Context, batchID uuid.UUID) (*database.BatchCounts, error)
	UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status models.PayoutBatchStatus, counts database.BatchCounts) error
}

// DetailerStore reads detailers and writes subscription linkage
type DetailerStore interface {
	GetDetailerByID(ctx context.Context, id uuid.UUID) (*models.Detailer, error)
	GetDetailerByUserID(ctx context.Context, userID uuid.UUID) (*models.Detailer, error)
	GetDetailerBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Detailer, error)
	SetSubscriptionIfUnset(ctx context.Context, detailerID uuid.UUID, subscriptionID, status string) (bool, error)
	ClearSubscription(ctx context.Context, detailerID uuid.UUID) (bool, error)
	GetNotificationProfile(ctx context.Context, detailerID uuid.UUID) (*models.NotificationProfile, error)
}

// WebhookEventStore is the webhook audit log
type WebhookEventStore interface {
	Log(ctx context.Context, event *models.WebhookEvent) error
	HasProcessed(ctx context.Context, gatewayEventID string) (bool, error)
	ListRecentFailures(ctx context.Context, hours int, limit int) ([]models.WebhookEvent, error)
}

// EventPublisher publishes domain events (pkg/mq.Publisher)
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Notifier delivers a detailer notification, directly or through the queue
type Notifier interface {
	Notify(ctx context.Context, req models.NotificationRequest) (*models.NotificationResult, error)
}

// PayoutLedger receives completed bookings from the state machine
type PayoutLedger interface {
	CreatePendingTransfer(ctx context.Context, booking *models.Booking) (*models.Transfer, error)
}

// Routing keys on the events exchange
const (
	RoutingBookingStatusChanged = "booking.status_changed"
	RoutingDetailerNotification = "notification.detailer"
)
