package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/middleware"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingReader is the read side of the booking repository
type BookingReader interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookingTimeline(ctx context.Context, bookingID uuid.UUID) ([]models.BookingTimelineEntry, error)
}

// StatusAdvancer moves bookings through their lifecycle (BookingStateMachine)
type StatusAdvancer interface {
	Advance(ctx context.Context, actor models.Actor, bookingID uuid.UUID, newStatus models.BookingStatus) (*models.Booking, error)
}

// BookingAssigner offers bookings to detailers (AutoAssignmentService)
type BookingAssigner interface {
	Assign(ctx context.Context, bookingID uuid.UUID) (*uuid.UUID, error)
	AssignTo(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error
}

// BookingHandler handles booking lifecycle HTTP requests
type BookingHandler struct {
	bookings  BookingReader
	detailers detailerForUser
	machine   StatusAdvancer
	assigner  BookingAssigner
	logger    *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	bookings BookingReader,
	detailers detailerForUser,
	machine StatusAdvancer,
	assigner BookingAssigner,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookings:  bookings,
		detailers: detailers,
		machine:   machine,
		assigner:  assigner,
		logger:    logger,
	}
}

// ============================================================================
// READS
// ============================================================================

// GetBooking handles GET /api/v1/bookings/:id (admin or assigned detailer)
func (h *BookingHandler) GetBooking(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	actor, ok := h.resolveActor(c, user)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		h.logger.WithField("booking_id", bookingID).WithError(err).Error("Failed to get booking")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve booking",
		})
		return
	}
	// A detailer sees the same 404 for a missing booking and someone else's booking
	if booking == nil || (actor.Role == models.ActorDetailer && !booking.IsAssignedTo(*actor.DetailerID)) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Booking not found",
		})
		return
	}

	timeline, err := h.bookings.ListBookingTimeline(c.Request.Context(), bookingID)
	if err != nil {
		h.logger.WithField("booking_id", bookingID).WithError(err).Warn("Failed to load booking timeline")
		timeline = nil
	}
	if timeline == nil {
		timeline = []models.BookingTimelineEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":  booking,
		"timeline": timeline,
	})
}

// ============================================================================
// STATUS CHANGES
// ============================================================================

// UpdateStatus handles PATCH /api/v1/bookings/:id/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "status must be a known booking status",
		})
		return
	}

	actor, ok := h.resolveActor(c, user)
	if !ok {
		return
	}

	booking, err := h.machine.Advance(c.Request.Context(), actor, bookingID, req.Status)
	if err != nil {
		h.respondTransitionError(c, err, logrus.Fields{
			"booking_id": bookingID,
			"status":     req.Status,
			"actor_role": actor.Role,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking status updated",
		"booking": booking,
	})
}

// AssignBooking handles POST /api/v1/admin/bookings/:id/assign.
// With detailer_id the booking is offered to that detailer, otherwise the
// auto-assignment engine picks one.
func (h *BookingHandler) AssignBooking(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.AssignBookingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "detailer_id must be a UUID",
			})
			return
		}
	}

	ctx := c.Request.Context()
	log := h.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"admin_id":   user.UserID,
	})

	if req.DetailerID != nil {
		detailerID := uuid.MustParse(*req.DetailerID)
		if err := h.assigner.AssignTo(ctx, bookingID, detailerID, models.AdminActor(user.UserID)); err != nil {
			h.respondTransitionError(c, err, logrus.Fields{"booking_id": bookingID, "detailer_id": detailerID})
			return
		}
		log.WithField("detailer_id", detailerID).Info("Booking manually assigned")
		c.JSON(http.StatusOK, gin.H{
			"message":     "Booking assigned",
			"booking_id":  bookingID,
			"detailer_id": detailerID,
			"mode":        "manual",
		})
		return
	}

	detailerID, err := h.assigner.Assign(ctx, bookingID)
	if err != nil {
		h.respondTransitionError(c, err, logrus.Fields{"booking_id": bookingID})
		return
	}
	if detailerID == nil {
		c.JSON(http.StatusOK, gin.H{
			"message":    "No eligible detailer available",
			"booking_id": bookingID,
			"assigned":   false,
			"mode":       "auto",
		})
		return
	}

	log.WithField("detailer_id", *detailerID).Info("Booking auto-assigned by operator")
	c.JSON(http.StatusOK, gin.H{
		"message":     "Booking assigned",
		"booking_id":  bookingID,
		"detailer_id": *detailerID,
		"assigned":    true,
		"mode":        "auto",
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// resolveActor maps the caller to a state machine actor. Detailer callers are
// bound to their detailer record.
func (h *BookingHandler) resolveActor(c *gin.Context, user middleware.UserContext) (models.Actor, bool) {
	if user.IsAdmin() {
		return models.AdminActor(user.UserID), true
	}

	detailer, err := h.detailers.GetDetailerByUserID(c.Request.Context(), user.UserID)
	if err != nil {
		h.logger.WithField("user_id", user.UserID).WithError(err).Error("Failed to resolve detailer")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to resolve detailer",
		})
		return models.Actor{}, false
	}
	if detailer == nil {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "No detailer profile for this account",
			Code:    "DETAILER_PROFILE_MISSING",
		})
		return models.Actor{}, false
	}
	return models.DetailerActor(user.UserID, detailer.ID), true
}

func (h *BookingHandler) respondTransitionError(c *gin.Context, err error, fields logrus.Fields) {
	status, resp := transitionErrorResponse(err)
	log := h.logger.WithFields(fields).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Booking operation failed")
	} else {
		log.Warn("Booking operation rejected")
	}
	c.JSON(status, resp)
}

// transitionErrorResponse maps service sentinels to HTTP responses
func transitionErrorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Booking not found"}
	case errors.Is(err, services.ErrForbiddenTransition):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: err.Error(), Code: "FORBIDDEN_TRANSITION"}
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: "invalid_transition", Message: err.Error(), Code: "INVALID_TRANSITION"}
	case errors.Is(err, services.ErrDetailerRequired):
		return http.StatusConflict, ErrorResponse{Error: "invalid_transition", Message: err.Error(), Code: "DETAILER_REQUIRED"}
	case errors.Is(err, services.ErrStatusConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error(), Code: "STATUS_CONFLICT"}
	case errors.Is(err, services.ErrBookingNotAssignable):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error(), Code: "BOOKING_NOT_ASSIGNABLE"}
	case errors.Is(err, services.ErrDetailerNotEligible):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: err.Error(), Code: "DETAILER_NOT_ELIGIBLE"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to update booking"}
}
