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

func TestAutoAssignmentService_Assign(t *testing.T) {
	ctx := context.Background()

	t.Run("already offered has no side effects", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusOffered, &d.ID)

		got, err := h.assigner.Assign(ctx, b.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, d.ID, *got)
		assert.Empty(t, h.notifier.reqs)
		assert.Empty(t, h.publisher.keys)
	})

	t.Run("not assignable surfaces the sentinel", func(t *testing.T) {
		h := newHarness()
		b := h.store.addBooking(models.BookingStatusPending, nil)

		_, err := h.assigner.Assign(ctx, b.ID)
		assert.True(t, errors.Is(err, ErrBookingNotAssignable))
	})
}

func TestAutoAssignmentService_AssignTo(t *testing.T) {
	ctx := context.Background()
	admin := models.AdminActor(uuid.New())

	t.Run("reassigns an offered booking", func(t *testing.T) {
		h := newHarness()
		first := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		second := h.store.addDetailer(models.PricingModelPercentage, "acct_2")
		b := h.store.addBooking(models.BookingStatusOffered, &first.ID)

		require.NoError(t, h.assigner.AssignTo(ctx, b.ID, second.ID, admin))

		got := h.store.booking(b.ID)
		assert.True(t, got.IsAssignedTo(second.ID))
		sent := h.notifier.ofType(models.NotificationNewBooking)
		require.Len(t, sent, 1)
		assert.Equal(t, second.ID, sent[0].DetailerID)
	})

	t.Run("same detailer is a no-op", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusOffered, &d.ID)

		require.NoError(t, h.assigner.AssignTo(ctx, b.ID, d.ID, admin))
		assert.Empty(t, h.notifier.reqs)
	})

	t.Run("inactive detailer rejected", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		d.IsActive = false
		b := h.store.addBooking(models.BookingStatusPaid, nil)

		err := h.assigner.AssignTo(ctx, b.ID, d.ID, admin)
		assert.True(t, errors.Is(err, ErrDetailerNotEligible))
	})

	t.Run("unknown booking", func(t *testing.T) {
		h := newHarness()
		err := h.assigner.AssignTo(ctx, uuid.New(), uuid.New(), admin)
		assert.True(t, errors.Is(err, ErrBookingNotFound))
	})
}

func TestAutoAssignmentService_Sweeps(t *testing.T) {
	ctx := context.Background()

	t.Run("retry assigns waiting bookings", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		b := h.store.addBooking(models.BookingStatusPaid, nil)
		h.store.bookings[b.ID].PaymentStatus = models.PaymentStatusPaid

		assigned, err := h.assigner.RetryUnassigned(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, assigned)

		h.store.eligible = []uuid.UUID{d.ID}
		assigned, err = h.assigner.RetryUnassigned(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, assigned)
		assert.Equal(t, models.BookingStatusOffered, h.store.booking(b.ID).Status)
	})

	t.Run("heal repairs both inconsistencies", func(t *testing.T) {
		h := newHarness()
		d := h.store.addDetailer(models.PricingModelPercentage, "acct_1")
		paidWithDetailer := h.store.addBooking(models.BookingStatusPaid, &d.ID)
		offeredWithout := h.store.addBooking(models.BookingStatusOffered, nil)
		consistent := h.store.addBooking(models.BookingStatusAccepted, &d.ID)

		healed, err := h.assigner.HealInconsistencies(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, healed)

		assert.Equal(t, models.BookingStatusOffered, h.store.booking(paidWithDetailer.ID).Status)
		assert.Equal(t, models.BookingStatusPaid, h.store.booking(offeredWithout.ID).Status)
		assert.Equal(t, models.BookingStatusAccepted, h.store.booking(consistent.ID).Status)
	})
}
