package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStateMachine_Advance(t *testing.T) {
	ctx := context.Background()

	t.Run("system follows the graph", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusRequiresPayment, nil)

		updated, err := h.machine.Advance(ctx, models.SystemActor(), b.ID, models.BookingStatusPaid)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPaid, updated.Status)

		_, err = h.machine.Advance(ctx, models.SystemActor(), b.ID, models.BookingStatusCompleted)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, models.BookingStatusPaid, h.store.booking(b.ID).Status)
	})

	t.Run("unknown booking", func(t *testing.T) {
		h := newHarness()
		_, err := h.machine.Advance(ctx, models.SystemActor(), uuid.New(), models.BookingStatusPaid)
		assert.True(t, errors.Is(err, ErrBookingNotFound))
	})

	t.Run("same status is invalid even for admin", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPaid, nil)
		_, err := h.machine.Advance(ctx, models.AdminActor(uuid.New()), b.ID, models.BookingStatusPaid)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("detailer moves own booking forward", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusOffered, &d.ID)
		actor := models.DetailerActor(d.UserID, d.ID)

		for _, next := range []models.BookingStatus{
			models.BookingStatusAccepted,
			models.BookingStatusInProgress,
		} {
			_, err := h.machine.Advance(ctx, actor, b.ID, next)
			require.NoError(t, err)
		}
		assert.Equal(t, models.BookingStatusInProgress, h.store.booking(b.ID).Status)
	})

	t.Run("detailer cannot act on another detailer's booking", func(t *testing.T) {
		h := newHarness()
		owner := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		other := h.store.addDetailer(models.PricingModelPercentage, "acct_2")
		b := h.store.addBooking(models.BookingStatusOffered, &owner.ID)

		_, err := h.machine.Advance(ctx, models.DetailerActor(other.UserID, other.ID), b.ID, models.BookingStatusAccepted)
		assert.True(t, errors.Is(err, ErrForbiddenTransition))
		assert.Equal(t, models.BookingStatusOffered, h.store.booking(b.ID).Status)
	})

	t.Run("detailer cannot cancel", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusAccepted, &d.ID)

		_, err := h.machine.Advance(ctx, models.DetailerActor(d.UserID, d.ID), b.ID, models.BookingStatusCancelled)
		assert.True(t, errors.Is(err, ErrForbiddenTransition))
	})

	t.Run("unknown role is forbidden", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPending, nil)
		_, err := h.machine.Advance(ctx, models.Actor{Role: "customer"}, b.ID, models.BookingStatusRequiresPayment)
		assert.True(t, errors.Is(err, ErrForbiddenTransition))
	})

	t.Run("admin may leave the graph but not drop the detailer invariant", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPaid, nil)
		admin := models.AdminActor(uuid.New())

		_, err := h.machine.Advance(ctx, admin, b.ID, models.BookingStatusAccepted)
		assert.True(t, errors.Is(err, ErrDetailerRequired))

		_, err = h.machine.Advance(ctx, admin, b.ID, models.BookingStatusPending)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPending, h.store.booking(b.ID).Status)
	})

	t.Run("concurrent change is a conflict", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusRequiresPayment, nil)
		// Simulate the row moving between read and conditional write
		stale := &staleBookingStore{memStore: h.store, moveTo: models.BookingStatusCancelled}
		machine := NewBookingStateMachine(stale, nil, nil, nil, quietLogger())

		_, err := machine.Advance(ctx, models.SystemActor(), b.ID, models.BookingStatusPaid)
		assert.True(t, errors.Is(err, ErrStatusConflict))
		assert.Equal(t, models.BookingStatusCancelled, h.store.booking(b.ID).Status)
	})
}

// staleBookingStore moves the booking right after it is read
type staleBookingStore struct {
	*memStore
	moveTo models.BookingStatus
}

func (s *staleBookingStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := s.memStore.GetBookingByID(ctx, id)
	if b != nil {
		s.memStore.forceStatus(id, s.moveTo, b.DetailerID)
	}
	return b, err
}

func TestBookingStateMachine_SideEffects(t *testing.T) {
	ctx := context.Background()

	t.Run("completion creates one pending transfer", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusInProgress, &d.ID)
		h.store.bookings[b.ID].PaymentStatus = models.PaymentStatusPaid

		_, err := h.machine.Advance(ctx, models.DetailerActor(d.UserID, d.ID), b.ID, models.BookingStatusCompleted)
		require.NoError(t, err)

		transfer := h.store.transferForBooking(b.ID)
		require.NotNil(t, transfer)
		assert.Equal(t, models.TransferStatusPending, transfer.Status)
		assert.Equal(t, int64(8415), transfer.AmountCents)
		assert.Equal(t, int64(1485), transfer.PlatformFeeCents)
		assert.Equal(t, "cad", transfer.Currency)
	})

	t.Run("unpaid completion creates no transfer", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusInProgress, &d.ID)

		_, err := h.machine.Advance(ctx, models.AdminActor(uuid.New()), b.ID, models.BookingStatusCompleted)
		require.NoError(t, err)
		assert.Nil(t, h.store.transferForBooking(b.ID))
	})

	t.Run("cancellation notifies the assigned detailer", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusAccepted, &d.ID)

		_, err := h.machine.Advance(ctx, models.AdminActor(uuid.New()), b.ID, models.BookingStatusCancelled)
		require.NoError(t, err)

		sent := h.notifier.ofType(models.NotificationBookingCancelled)
		require.Len(t, sent, 1)
		assert.Equal(t, d.ID, sent[0].DetailerID)
		assert.Equal(t, b.ID.String(), sent[0].Data["booking_id"])
		assert.Equal(t, "10:00", sent[0].Data["scheduled_time"])
	})

	t.Run("cancellation without detailer notifies nobody", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPaid, nil)

		_, err := h.machine.Advance(ctx, models.SystemActor(), b.ID, models.BookingStatusCancelled)
		require.NoError(t, err)
		assert.Empty(t, h.notifier.reqs)
	})

	t.Run("every transition is published and written to the timeline", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPending, nil)

		_, err := h.machine.Advance(ctx, models.SystemActor(), b.ID, models.BookingStatusRequiresPayment)
		require.NoError(t, err)

		require.Equal(t, []string{RoutingBookingStatusChanged}, h.publisher.keys)
		event, ok := h.publisher.values[0].(models.BookingStatusChangedEvent)
		require.True(t, ok)
		assert.Equal(t, models.BookingStatusPending, event.From)
		assert.Equal(t, models.BookingStatusRequiresPayment, event.To)
		assert.Equal(t, models.ActorSystem, event.ActorRole)

		timeline, err := h.store.ListBookingTimeline(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, timeline, 1)
		assert.Equal(t, models.BookingStatusRequiresPayment, timeline[0].ToStatus)
	})

	t.Run("publish and notify failures do not fail the transition", func(t *testing.T) {
		h := newHarness()
		h.publisher.err = errors.New("broker down")
		h.notifier.err = errors.New("sms down")
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusOffered, &d.ID)

		_, err := h.machine.Advance(ctx, models.AdminActor(uuid.New()), b.ID, models.BookingStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, h.store.booking(b.ID).Status)
	})
}
