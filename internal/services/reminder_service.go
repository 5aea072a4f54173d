package services

import (
	"context"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// ReminderService notifies detailers about their bookings for the next day
type ReminderService struct {
	bookings BookingStore
	notifier Notifier
	limit    int
	logger   *logrus.Logger
}

// NewReminderService creates a new ReminderService
func NewReminderService(bookings BookingStore, notifier Notifier, limit int, logger *logrus.Logger) *ReminderService {
	if limit <= 0 {
		limit = 500
	}
	return &ReminderService{bookings: bookings, notifier: notifier, limit: limit, logger: logger}
}

// SendReminders sends one reminder per assigned booking scheduled the day after now.
// A booking is stamped only after its notification was accepted, so failures retry on the next run.
func (s *ReminderService) SendReminders(ctx context.Context, now time.Time) (int, error) {
	tomorrow := now.UTC().AddDate(0, 0, 1)
	bookings, err := s.bookings.ListBookingsForReminder(ctx, tomorrow, s.limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range bookings {
		b := &bookings[i]
		if !b.HasDetailer() {
			continue
		}
		log := s.logger.WithFields(logrus.Fields{
			"booking_id":  b.ID,
			"detailer_id": *b.DetailerID,
		})

		_, err := s.notifier.Notify(ctx, models.NotificationRequest{
			DetailerID: *b.DetailerID,
			Type:       models.NotificationBookingReminder,
			Data:       bookingNotificationData(b),
		})
		if err != nil {
			log.WithError(err).Warn("Booking reminder failed")
			continue
		}
		if err := s.bookings.MarkReminderSent(ctx, b.ID); err != nil {
			log.WithError(err).Warn("Failed to stamp reminder")
			continue
		}
		sent++
	}
	return sent, nil
}
