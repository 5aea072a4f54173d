package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Assignment errors come from the repository transaction
var (
	ErrBookingNotAssignable = database.ErrBookingNotAssignable
	ErrDetailerNotEligible  = database.ErrDetailerNotEligible
)

// AutoAssignmentService matches paid bookings to detailers
type AutoAssignmentService struct {
	assignments AssignmentStore
	bookings    BookingStore
	machine     *BookingStateMachine
	batchMax    int
	logger      *logrus.Logger
}

// NewAutoAssignmentService creates a new AutoAssignmentService.
// batchMax bounds the scheduler passes.
func NewAutoAssignmentService(assignments AssignmentStore, bookings BookingStore, machine *BookingStateMachine, batchMax int, logger *logrus.Logger) *AutoAssignmentService {
	if batchMax <= 0 {
		batchMax = 50
	}
	return &AutoAssignmentService{
		assignments: assignments,
		bookings:    bookings,
		machine:     machine,
		batchMax:    batchMax,
		logger:      logger,
	}
}

// Assign offers a paid, unassigned booking to the nearest eligible detailer.
// Returns nil when no detailer is eligible; the booking stays paid.
func (s *AutoAssignmentService) Assign(ctx context.Context, bookingID uuid.UUID) (*uuid.UUID, error) {
	result, err := s.assignments.AssignEligibleDetailer(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("booking_id", bookingID)
	if result == nil {
		log.Info("No eligible detailer for booking")
		return nil, nil
	}

	detailerID := result.DetailerID
	if result.AlreadyOffered {
		log.WithField("detailer_id", detailerID).Debug("Booking already offered")
		return &detailerID, nil
	}

	log.WithField("detailer_id", detailerID).Info("Booking auto-assigned")
	s.machine.RecordOffer(ctx, bookingID, models.BookingStatusPaid, models.SystemActor())
	return &detailerID, nil
}

// AssignTo offers a booking to a specific detailer on behalf of an operator
func (s *AutoAssignmentService) AssignTo(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return fmt.Errorf("booking %s: %w", bookingID, ErrBookingNotFound)
	}
	if booking.IsAssignedTo(detailerID) && booking.Status == models.BookingStatusOffered {
		return nil
	}

	if err := s.assignments.AssignDetailer(ctx, bookingID, detailerID, actor); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  bookingID,
		"detailer_id": detailerID,
		"actor_role":  actor.Role,
	}).Info("Booking manually assigned")
	s.machine.RecordOffer(ctx, bookingID, booking.Status, actor)
	return nil
}

// EnsureAssigned re-reads a booking after an assignment attempt and repairs a status
// that disagrees with detailer_id: paid with a detailer advances to offered, offered
// without one returns to paid.
func (s *AutoAssignmentService) EnsureAssigned(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return nil
	}
	return s.heal(ctx, booking)
}

// RetryUnassigned runs assignment for paid bookings still without a detailer.
// Returns how many were assigned.
func (s *AutoAssignmentService) RetryUnassigned(ctx context.Context) (int, error) {
	ids, err := s.assignments.ListPaidUnassigned(ctx, s.batchMax)
	if err != nil {
		return 0, err
	}

	assigned := 0
	var errs []error
	for _, id := range ids {
		detailerID, err := s.Assign(ctx, id)
		if err != nil {
			s.logger.WithField("booking_id", id).WithError(err).Warn("Assignment retry failed")
			errs = append(errs, err)
			continue
		}
		if detailerID != nil {
			assigned++
		}
	}
	return assigned, errors.Join(errs...)
}

// HealInconsistencies repairs bookings whose status and detailer_id disagree.
// Returns how many were repaired.
func (s *AutoAssignmentService) HealInconsistencies(ctx context.Context) (int, error) {
	bookings, err := s.bookings.ListAssignmentInconsistencies(ctx, s.batchMax)
	if err != nil {
		return 0, err
	}

	healed := 0
	var errs []error
	for i := range bookings {
		if err := s.heal(ctx, &bookings[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		healed++
	}
	return healed, errors.Join(errs...)
}

func (s *AutoAssignmentService) heal(ctx context.Context, booking *models.Booking) error {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})

	switch {
	case booking.Status == models.BookingStatusPaid && booking.HasDetailer():
		log.Warn("Self-heal: paid booking has a detailer, advancing to offered")
		if _, err := s.machine.Advance(ctx, models.SystemActor(), booking.ID, models.BookingStatusOffered); err != nil {
			log.WithError(err).Error("Self-heal advance to offered failed")
			return err
		}

	case booking.Status == models.BookingStatusOffered && !booking.HasDetailer():
		log.Warn("Self-heal: offered booking has no detailer, resetting to paid")
		ok, err := s.bookings.ResetUnassignedOffer(ctx, booking.ID)
		if err != nil {
			log.WithError(err).Error("Self-heal reset to paid failed")
			return err
		}
		if !ok {
			log.Info("Self-heal reset skipped, booking changed concurrently")
		}
	}
	return nil
}
