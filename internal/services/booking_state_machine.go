package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrBookingNotFound     = database.ErrBookingNotFound
	ErrForbiddenTransition = errors.New("transition not allowed for this actor")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDetailerRequired    = errors.New("status requires an assigned detailer")
	ErrStatusConflict      = errors.New("booking status changed concurrently")
)

// detailerTransitions are the only moves a detailer may make on their own booking
var detailerTransitions = map[models.BookingStatus]models.BookingStatus{
	models.BookingStatusOffered:    models.BookingStatusAccepted,
	models.BookingStatusAccepted:   models.BookingStatusInProgress,
	models.BookingStatusInProgress: models.BookingStatusCompleted,
}

// BookingStateMachine is the only writer of bookings.status for governed transitions
type BookingStateMachine struct {
	bookings BookingStore
	payouts  PayoutLedger
	notifier Notifier
	events   EventPublisher
	logger   *logrus.Logger
}

// NewBookingStateMachine creates a state machine. payouts, notifier and events may be nil.
func NewBookingStateMachine(bookings BookingStore, payouts PayoutLedger, notifier Notifier, events EventPublisher, logger *logrus.Logger) *BookingStateMachine {
	return &BookingStateMachine{
		bookings: bookings,
		payouts:  payouts,
		notifier: notifier,
		events:   events,
		logger:   logger,
	}
}

// Advance moves a booking to newStatus on behalf of actor and runs the side effects of
// entering that status. Returns the updated booking.
func (m *BookingStateMachine) Advance(ctx context.Context, actor models.Actor, bookingID uuid.UUID, newStatus models.BookingStatus) (*models.Booking, error) {
	booking, err := m.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrBookingNotFound)
	}

	from := booking.Status
	if err := authorizeTransition(actor, booking, newStatus); err != nil {
		return nil, err
	}
	if newStatus.RequiresDetailer() && !booking.HasDetailer() {
		return nil, fmt.Errorf("%s -> %s: %w", from, newStatus, ErrDetailerRequired)
	}

	ok, err := m.bookings.UpdateBookingStatus(ctx, bookingID, from, newStatus, actor, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("booking %s is no longer %s: %w", bookingID, from, ErrStatusConflict)
	}

	m.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"from":       from,
		"to":         newStatus,
		"actor_role": actor.Role,
	}).Info("Booking status changed")

	booking.Status = newStatus
	m.afterTransition(ctx, booking, from, actor)
	return booking, nil
}

// RecordOffer runs the side effects of a booking entering offered through an
// assignment transaction rather than Advance.
func (m *BookingStateMachine) RecordOffer(ctx context.Context, bookingID uuid.UUID, from models.BookingStatus, actor models.Actor) {
	booking, err := m.bookings.GetBookingByID(ctx, bookingID)
	if err != nil || booking == nil {
		m.logger.WithField("booking_id", bookingID).WithError(err).Warn("Could not reload booking after assignment")
		return
	}
	m.afterTransition(ctx, booking, from, actor)
}

// authorizeTransition applies the role rules:
// admin may set any other status, detailers make forward moves on their own
// bookings, system follows the transition graph.
func authorizeTransition(actor models.Actor, booking *models.Booking, to models.BookingStatus) error {
	from := booking.Status
	if !to.IsValid() {
		return fmt.Errorf("unknown status %q: %w", to, ErrInvalidTransition)
	}
	if from == to {
		return fmt.Errorf("booking is already %s: %w", from, ErrInvalidTransition)
	}

	switch actor.Role {
	case models.ActorAdmin:
		return nil

	case models.ActorDetailer:
		if actor.DetailerID == nil || !booking.IsAssignedTo(*actor.DetailerID) {
			return fmt.Errorf("booking is not assigned to this detailer: %w", ErrForbiddenTransition)
		}
		if next, ok := detailerTransitions[from]; !ok || next != to {
			return fmt.Errorf("detailer cannot move %s -> %s: %w", from, to, ErrForbiddenTransition)
		}
		return nil

	case models.ActorSystem:
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
		}
		return nil
	}

	return fmt.Errorf("unknown actor role %q: %w", actor.Role, ErrForbiddenTransition)
}

// afterTransition runs best-effort side effects; failures are logged only
func (m *BookingStateMachine) afterTransition(ctx context.Context, booking *models.Booking, from models.BookingStatus, actor models.Actor) {
	log := m.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	switch booking.Status {
	case models.BookingStatusCompleted:
		if m.payouts != nil && booking.IsPaid() {
			if _, err := m.payouts.CreatePendingTransfer(ctx, booking); err != nil {
				log.WithError(err).Error("Failed to create pending transfer")
			}
		} else if !booking.IsPaid() {
			log.WithField("payment_status", booking.PaymentStatus).Warn("Completed booking is not paid, no transfer created")
		}

	case models.BookingStatusOffered:
		m.notify(ctx, booking, models.NotificationNewBooking)

	case models.BookingStatusCancelled:
		if booking.HasDetailer() {
			m.notify(ctx, booking, models.NotificationBookingCancelled)
		}
	}

	if m.events != nil {
		event := models.BookingStatusChangedEvent{
			Event:      RoutingBookingStatusChanged,
			Version:    1,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
			BookingID:  booking.ID,
			DetailerID: booking.DetailerID,
			From:       from,
			To:         booking.Status,
			ActorRole:  actor.Role,
		}
		if err := m.events.PublishJSON(ctx, RoutingBookingStatusChanged, event); err != nil {
			log.WithError(err).Warn("Failed to publish booking status event")
		}
	}
}

func (m *BookingStateMachine) notify(ctx context.Context, booking *models.Booking, t models.NotificationType) {
	if m.notifier == nil || !booking.HasDetailer() {
		return
	}
	req := models.NotificationRequest{
		DetailerID: *booking.DetailerID,
		Type:       t,
		Data:       bookingNotificationData(booking),
	}
	if _, err := m.notifier.Notify(ctx, req); err != nil {
		m.logger.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"notification_type": t,
		}).WithError(err).Warn("Failed to notify detailer")
	}
}

// bookingNotificationData is the template data sent with booking notifications
func bookingNotificationData(b *models.Booking) map[string]string {
	data := map[string]string{
		"booking_id":      b.ID.String(),
		"receipt_id":      b.ReceiptID,
		"scheduled_date":  b.ScheduledDate.Format("2006-01-02"),
		"scheduled_time":  shortTime(b.ScheduledTime),
		"service_address": b.ServiceAddress,
		"total_amount":    b.TotalAmount.String(),
	}
	if b.ServiceName != nil {
		data["service_name"] = *b.ServiceName
	}
	return data
}

// shortTime trims "HH:MM:SS" to "HH:MM"
func shortTime(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}
