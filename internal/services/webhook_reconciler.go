package services

import (
	"context"
	"errors"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookReconciler applies verified gateway events to bookings, payments,
// detailer subscriptions and transfers.
//
// Every handler is best-effort: each step logs its own failure and the remaining
// steps still run. Failures are joined into the returned error so the caller can
// report them without asking the gateway to redeliver.
type WebhookReconciler struct {
	bookings  BookingStore
	payments  PaymentStore
	detailers DetailerStore
	machine   *BookingStateMachine
	assigner  *AutoAssignmentService
	payouts   *PayoutService
	logger    *logrus.Logger
}

// NewWebhookReconciler creates a reconciler. Writes run with service-level
// database credentials and state changes use the system actor.
func NewWebhookReconciler(
	bookings BookingStore,
	payments PaymentStore,
	detailers DetailerStore,
	machine *BookingStateMachine,
	assigner *AutoAssignmentService,
	payouts *PayoutService,
	logger *logrus.Logger,
) *WebhookReconciler {
	return &WebhookReconciler{
		bookings:  bookings,
		payments:  payments,
		detailers: detailers,
		machine:   machine,
		assigner:  assigner,
		payouts:   payouts,
		logger:    logger,
	}
}

// Reconcile dispatches one event. Unknown event types are ignored.
func (r *WebhookReconciler) Reconcile(ctx context.Context, event models.GatewayEvent) error {
	log := r.logger.WithFields(logrus.Fields{
		"event_id":   event.EventID(),
		"event_type": event.EventType(),
	})

	switch ev := event.(type) {
	case *models.PaymentSucceededEvent:
		return r.handlePaymentSucceeded(ctx, log, ev)
	case *models.PaymentFailedEvent:
		return r.handlePaymentNotCaptured(ctx, log, ev.PaymentIntentData, models.PaymentStatusFailed)
	case *models.PaymentCanceledEvent:
		return r.handlePaymentNotCaptured(ctx, log, ev.PaymentIntentData, models.PaymentStatusUnpaid)
	case *models.SubscriptionChangedEvent:
		return r.handleSubscriptionChanged(ctx, log, ev)
	case *models.SubscriptionDeletedEvent:
		return r.handleSubscriptionDeleted(ctx, log, ev)
	case *models.InvoicePaymentEvent:
		return r.handleInvoicePayment(ctx, log, ev)
	case *models.TransferCreatedEvent:
		return r.handleTransferCreated(ctx, log, ev)
	case *models.TransferPaidEvent:
		return r.handleTransferPaid(ctx, log, ev)
	case *models.TransferFailedEvent:
		return r.handleTransferFailed(ctx, log, ev)
	default:
		log.Debug("Ignoring unhandled event type")
		return nil
	}
}

// ============================================================================
// PAYMENT INTENTS
// ============================================================================

func (r *WebhookReconciler) handlePaymentSucceeded(ctx context.Context, log *logrus.Entry, ev *models.PaymentSucceededEvent) error {
	log = log.WithField("payment_intent_id", ev.PaymentIntentID)
	if ev.BookingID == nil {
		log.Warn("Payment intent has no booking_id metadata, skipping")
		return nil
	}
	bookingID := *ev.BookingID
	log = log.WithField("booking_id", bookingID)

	var errs []error

	// Money axis first, unconditionally
	found, err := r.bookings.MarkPaymentSucceeded(ctx, bookingID, ev.PaymentIntentID)
	if err != nil {
		log.WithError(err).Error("Failed to mark booking paid")
		errs = append(errs, err)
	} else if !found {
		log.Warn("Booking for payment intent not found")
		return nil
	}

	// Workflow axis only from requires_payment
	advanced := false
	booking, err := r.bookings.GetBookingByID(ctx, bookingID)
	switch {
	case err != nil:
		log.WithError(err).Error("Failed to reload booking")
		errs = append(errs, err)
	case booking != nil && booking.Status == models.BookingStatusRequiresPayment:
		if _, err := r.machine.Advance(ctx, models.SystemActor(), bookingID, models.BookingStatusPaid); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				log.Info("Booking advanced concurrently, skipping")
			} else {
				log.WithError(err).Error("Failed to advance booking to paid")
				errs = append(errs, err)
			}
		} else {
			advanced = true
		}
	case booking != nil:
		log.WithField("status", booking.Status).Info("Booking not awaiting payment, status unchanged")
	}

	if advanced {
		if _, err := r.assigner.Assign(ctx, bookingID); err != nil {
			log.WithError(err).Error("Auto-assignment failed")
			errs = append(errs, err)
		}
		if err := r.assigner.EnsureAssigned(ctx, bookingID); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.payments.UpsertPayment(ctx, paymentFromIntent(bookingID, ev.PaymentIntentData, models.PaymentRecordPaid)); err != nil {
		log.WithError(err).Error("Failed to upsert payment")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// handlePaymentNotCaptured writes payment_status only; the booking status is left alone
func (r *WebhookReconciler) handlePaymentNotCaptured(ctx context.Context, log *logrus.Entry, data models.PaymentIntentData, status models.PaymentStatus) error {
	log = log.WithField("payment_intent_id", data.PaymentIntentID)
	if data.BookingID == nil {
		log.Warn("Payment intent has no booking_id metadata, skipping")
		return nil
	}
	bookingID := *data.BookingID
	log = log.WithField("booking_id", bookingID)

	var errs []error
	found, err := r.bookings.UpdatePaymentStatus(ctx, bookingID, status, data.PaymentIntentID)
	if err != nil {
		log.WithError(err).Error("Failed to update payment status")
		errs = append(errs, err)
	} else if !found {
		log.Warn("Booking for payment intent not found")
		return nil
	}

	if data.FailureMessage != nil {
		log.WithField("failure_message", *data.FailureMessage).Warn("Payment not captured")
	}

	if err := r.payments.UpsertPayment(ctx, paymentFromIntent(bookingID, data, models.PaymentRecordFailed)); err != nil {
		log.WithError(err).Error("Failed to upsert payment")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func paymentFromIntent(bookingID uuid.UUID, data models.PaymentIntentData, status models.PaymentRecordStatus) *models.Payment {
	return &models.Payment{
		BookingID:             bookingID,
		AmountCents:           data.AmountCents,
		Currency:              data.Currency,
		Status:                status,
		StripePaymentIntentID: data.PaymentIntentID,
		StripeChargeID:        data.ChargeID,
	}
}

// ============================================================================
// SUBSCRIPTIONS & INVOICES
// ============================================================================

func (r *WebhookReconciler) handleSubscriptionChanged(ctx context.Context, log *logrus.Entry, ev *models.SubscriptionChangedEvent) error {
	log = log.WithField("subscription_id", ev.SubscriptionID)
	if ev.DetailerID == nil {
		log.Warn("Subscription has no detailer_id metadata, skipping")
		return nil
	}

	linked, err := r.detailers.SetSubscriptionIfUnset(ctx, *ev.DetailerID, ev.SubscriptionID, ev.Status)
	if err != nil {
		log.WithError(err).Error("Failed to link subscription")
		return err
	}
	if !linked {
		log.WithField("detailer_id", *ev.DetailerID).Info("Detailer already linked to another subscription, unchanged")
	}
	return nil
}

func (r *WebhookReconciler) handleSubscriptionDeleted(ctx context.Context, log *logrus.Entry, ev *models.SubscriptionDeletedEvent) error {
	log = log.WithField("subscription_id", ev.SubscriptionID)

	detailerID := ev.DetailerID
	if detailerID == nil {
		detailer, err := r.detailers.GetDetailerBySubscriptionID(ctx, ev.SubscriptionID)
		if err != nil {
			log.WithError(err).Error("Failed to look up detailer by subscription")
			return err
		}
		if detailer == nil {
			log.Warn("No detailer for deleted subscription, skipping")
			return nil
		}
		detailerID = &detailer.ID
	}

	if _, err := r.detailers.ClearSubscription(ctx, *detailerID); err != nil {
		log.WithError(err).Error("Failed to clear subscription")
		return err
	}
	log.WithField("detailer_id", *detailerID).Info("Detailer subscription cleared")
	return nil
}

func (r *WebhookReconciler) handleInvoicePayment(ctx context.Context, log *logrus.Entry, ev *models.InvoicePaymentEvent) error {
	if ev.SubscriptionID == "" {
		return nil
	}
	detailer, err := r.detailers.GetDetailerBySubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		log.WithError(err).Error("Failed to look up detailer by subscription")
		return err
	}
	if detailer == nil {
		return nil
	}

	log = log.WithFields(logrus.Fields{
		"detailer_id":  detailer.ID,
		"invoice_id":   ev.InvoiceID,
		"amount_cents": ev.AmountCents,
	})
	if ev.Succeeded {
		log.Info("Subscription invoice paid")
	} else {
		log.Warn("Subscription invoice payment failed")
	}
	return nil
}

// ============================================================================
// TRANSFERS
// ============================================================================

func (r *WebhookReconciler) locate(ctx context.Context, log *logrus.Entry, data models.TransferData) (*models.Transfer, error) {
	t, err := r.payouts.LocateTransfer(ctx, data)
	if err != nil {
		log.WithError(err).Error("Failed to look up transfer")
		return nil, err
	}
	if t == nil {
		log.Warn("No transfer matches event, skipping")
	}
	return t, nil
}

func (r *WebhookReconciler) handleTransferCreated(ctx context.Context, log *logrus.Entry, ev *models.TransferCreatedEvent) error {
	log = log.WithField("stripe_transfer_id", ev.ExternalTransferID)
	t, err := r.locate(ctx, log, ev.TransferData)
	if err != nil || t == nil {
		return err
	}
	return r.payouts.MarkProcessing(ctx, t, ev.ExternalTransferID)
}

func (r *WebhookReconciler) handleTransferPaid(ctx context.Context, log *logrus.Entry, ev *models.TransferPaidEvent) error {
	log = log.WithField("stripe_transfer_id", ev.ExternalTransferID)
	t, err := r.locate(ctx, log, ev.TransferData)
	if err != nil || t == nil {
		return err
	}
	return r.payouts.MarkSucceeded(ctx, t, ev.ExternalTransferID)
}

func (r *WebhookReconciler) handleTransferFailed(ctx context.Context, log *logrus.Entry, ev *models.TransferFailedEvent) error {
	log = log.WithField("stripe_transfer_id", ev.ExternalTransferID)
	t, err := r.locate(ctx, log, ev.TransferData)
	if err != nil || t == nil {
		return err
	}

	message := "transfer failed"
	if ev.FailureMessage != nil && *ev.FailureMessage != "" {
		message = *ev.FailureMessage
	}
	_, err = r.payouts.RecordFailure(ctx, t, message)
	return err
}
