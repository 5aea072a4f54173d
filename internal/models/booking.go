package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUSES (matches DB CHECK constraints)
// ============================================================================

// BookingStatus is the workflow axis of a booking
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"          // Created at checkout
	BookingStatusRequiresPayment BookingStatus = "requires_payment" // Payment intent created
	BookingStatusPaid            BookingStatus = "paid"             // Payment captured, no detailer yet
	BookingStatusOffered         BookingStatus = "offered"          // Detailer assigned, awaiting acceptance
	BookingStatusAccepted        BookingStatus = "accepted"         // Detailer accepted
	BookingStatusInProgress      BookingStatus = "in_progress"      // Work started
	BookingStatusCompleted       BookingStatus = "completed"        // Work finished
	BookingStatusCancelled       BookingStatus = "cancelled"
	BookingStatusNoShow          BookingStatus = "no_show"
)

// PaymentStatus is the money axis of a booking, written by the webhook reconciler
type PaymentStatus string

const (
	PaymentStatusUnpaid          PaymentStatus = "unpaid"
	PaymentStatusRequiresPayment PaymentStatus = "requires_payment"
	PaymentStatusProcessing      PaymentStatus = "processing"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusRefunded        PaymentStatus = "refunded"
	PaymentStatusFailed          PaymentStatus = "failed"
)

// bookingTransitions is the forward graph; cancelled and no_show are added for
// every non-terminal state in CanTransitionTo.
var bookingTransitions = map[BookingStatus]BookingStatus{
	BookingStatusPending:         BookingStatusRequiresPayment,
	BookingStatusRequiresPayment: BookingStatusPaid,
	BookingStatusPaid:            BookingStatusOffered,
	BookingStatusOffered:         BookingStatusAccepted,
	BookingStatusAccepted:        BookingStatusInProgress,
	BookingStatusInProgress:      BookingStatusCompleted,
}

// AllBookingStatuses lists every workflow status
func AllBookingStatuses() []BookingStatus {
	return []BookingStatus{
		BookingStatusPending,
		BookingStatusRequiresPayment,
		BookingStatusPaid,
		BookingStatusOffered,
		BookingStatusAccepted,
		BookingStatusInProgress,
		BookingStatusCompleted,
		BookingStatusCancelled,
		BookingStatusNoShow,
	}
}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	for _, known := range AllBookingStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusNoShow
}

// RequiresDetailer reports whether a booking in this status must have detailer_id set
func (s BookingStatus) RequiresDetailer() bool {
	switch s {
	case BookingStatusOffered, BookingStatusAccepted, BookingStatusInProgress, BookingStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal step from s
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == BookingStatusCancelled || next == BookingStatusNoShow {
		return true
	}
	return bookingTransitions[s] == next
}

// IsValid reports whether p is a known payment status
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusUnpaid, PaymentStatusRequiresPayment, PaymentStatusProcessing,
		PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is a scheduled detailing job
type Booking struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	ReceiptID      string        `json:"receipt_id" db:"receipt_id"`
	UserID         uuid.UUID     `json:"user_id" db:"user_id"`
	DetailerID     *uuid.UUID    `json:"detailer_id,omitempty" db:"detailer_id"`
	ServiceID      uuid.UUID     `json:"service_id" db:"service_id"`
	ServiceName    *string       `json:"service_name,omitempty" db:"service_name"` // joined from services
	VehicleID      *uuid.UUID    `json:"vehicle_id,omitempty" db:"vehicle_id"`
	OrganizationID *uuid.UUID    `json:"organization_id,omitempty" db:"organization_id"`
	Status         BookingStatus `json:"status" db:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status" db:"payment_status"`

	// Major-unit NUMERIC columns, held as cents
	ServicePrice Amount `json:"service_price" db:"service_price"`
	AddonsTotal  Amount `json:"addons_total" db:"addons_total"`
	TaxAmount    Amount `json:"tax_amount" db:"tax_amount"`
	TotalAmount  Amount `json:"total_amount" db:"total_amount"`

	ScheduledDate   time.Time `json:"scheduled_date" db:"scheduled_date"`
	ScheduledTime   string    `json:"scheduled_time" db:"scheduled_time"` // HH:MM:SS
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`

	ServiceAddress string   `json:"service_address" db:"service_address"`
	Latitude       *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64 `json:"longitude,omitempty" db:"longitude"`

	StripePaymentIntentID *string    `json:"stripe_payment_intent_id,omitempty" db:"stripe_payment_intent_id"`
	ReminderSentAt        *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// HasDetailer reports whether a detailer is assigned
func (b *Booking) HasDetailer() bool {
	return b.DetailerID != nil && *b.DetailerID != uuid.Nil
}

// IsAssignedTo reports whether detailerID is the assigned detailer
func (b *Booking) IsAssignedTo(detailerID uuid.UUID) bool {
	return b.HasDetailer() && *b.DetailerID == detailerID
}

// AssignmentConsistent checks the detailer invariant for the current status
func (b *Booking) AssignmentConsistent() bool {
	return !b.Status.RequiresDetailer() || b.HasDetailer()
}

// IsPaid reports whether the money axis says the booking was captured
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// Assignment is the outcome of an assignment attempt.
// AlreadyOffered is set when the booking was offered before this call.
type Assignment struct {
	DetailerID     uuid.UUID
	AlreadyOffered bool
}

// BookingTimelineEntry records one status change
type BookingTimelineEntry struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	BookingID  uuid.UUID     `json:"booking_id" db:"booking_id"`
	FromStatus BookingStatus `json:"from_status" db:"from_status"`
	ToStatus   BookingStatus `json:"to_status" db:"to_status"`
	ActorRole  ActorRole     `json:"actor_role" db:"actor_role"`
	ActorID    *uuid.UUID    `json:"actor_id,omitempty" db:"actor_id"`
	Note       *string       `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// BookingStatusChangedEvent is published on every applied transition
type BookingStatusChangedEvent struct {
	Event      string        `json:"event"` // "booking.status_changed"
	Version    int           `json:"version"`
	OccurredAt string        `json:"occurred_at"` // RFC3339
	BookingID  uuid.UUID     `json:"booking_id"`
	DetailerID *uuid.UUID    `json:"detailer_id,omitempty"`
	From       BookingStatus `json:"from"`
	To         BookingStatus `json:"to"`
	ActorRole  ActorRole     `json:"actor_role"`
}

// UpdateBookingStatusRequest is the body of PATCH /bookings/:id/status
type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required,booking_status"`
}

// AssignBookingRequest is the body of POST /admin/bookings/:id/assign
type AssignBookingRequest struct {
	DetailerID *string `json:"detailer_id,omitempty" binding:"omitempty,uuid"`
}
