package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/email"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/sms"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/validator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent []sms.Message
	err  error
}

func (f *fakeSMS) Send(ctx context.Context, msg sms.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "SM123", nil
}

func (f *fakeSMS) GetName() string { return "fake" }

type fakeEmail struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func (f *fakeEmail) GetName() string { return "fake" }

func newNotificationFixture() (*NotificationService, *memStore, *fakeSMS, *fakeEmail) {
	store := newMemStore()
	smsGateway := &fakeSMS{}
	emailSender := &fakeEmail{}
	senders := sms.NewSenderDirectory("+15550000000", map[string]string{
		string(validator.RegionUK): "+447700900000",
	})
	svc := NewNotificationService(store, smsGateway, senders, validator.NewPhoneValidator("1"), emailSender, quietLogger())
	return svc, store, smsGateway, emailSender
}

func TestNotificationService_Notify(t *testing.T) {
	ctx := context.Background()
	data := map[string]string{
		"service_name":    "Full Detail",
		"scheduled_date":  "2026-10-20",
		"scheduled_time":  "10:00",
		"service_address": "1 King St W",
		"receipt_id":      "CS-1001",
	}

	t.Run("sends both channels", func(t *testing.T) {
		svc, store, smsGateway, emailSender := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")

		result, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationNewBooking, Data: data})
		require.NoError(t, err)
		assert.True(t, result.SMSSent)
		assert.True(t, result.EmailSent)
		assert.Equal(t, "SM123", *result.SMSProviderID)
		assert.Equal(t, "msg-1", *result.EmailProviderID)

		require.Len(t, smsGateway.sent, 1)
		assert.Equal(t, "+14165550100", smsGateway.sent[0].To)
		assert.Equal(t, "+15550000000", smsGateway.sent[0].From)
		assert.True(t, strings.Contains(smsGateway.sent[0].Body, "Full Detail"))

		require.Len(t, emailSender.sent, 1)
		assert.Equal(t, "New booking offer", emailSender.sent[0].Subject)
		assert.Equal(t, "Sam Rivera", emailSender.sent[0].ToName)
	})

	t.Run("uses the regional sender", func(t *testing.T) {
		svc, store, smsGateway, _ := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")
		uk := "+44 7700 900123"
		d.Phone = &uk

		_, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationBookingReminder, Data: data})
		require.NoError(t, err)
		require.Len(t, smsGateway.sent, 1)
		assert.Equal(t, "+447700900123", smsGateway.sent[0].To)
		assert.Equal(t, "+447700900000", smsGateway.sent[0].From)
	})

	t.Run("respects opt-outs", func(t *testing.T) {
		svc, store, smsGateway, emailSender := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")

		// payout_processed defaults to email only
		result, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationPayoutProcessed, Data: map[string]string{"amount": "84.15", "currency": "cad"}})
		require.NoError(t, err)
		assert.False(t, result.SMSSent)
		assert.Nil(t, result.SMSError)
		assert.True(t, result.EmailSent)
		assert.Empty(t, smsGateway.sent)
		assert.True(t, strings.Contains(emailSender.sent[0].PlainText, "84.15 CAD"))
	})

	t.Run("one channel failing does not stop the other", func(t *testing.T) {
		svc, store, smsGateway, _ := newNotificationFixture()
		smsGateway.err = errors.New("twilio unavailable")
		d := store.addDetailer(models.PricingModelPercentage, "")

		result, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationNewBooking, Data: data})
		require.NoError(t, err)
		assert.False(t, result.SMSSent)
		require.NotNil(t, result.SMSError)
		assert.Equal(t, "twilio unavailable", *result.SMSError)
		assert.True(t, result.EmailSent)
		assert.True(t, result.AnySent())
	})

	t.Run("invalid phone is a channel error", func(t *testing.T) {
		svc, store, smsGateway, _ := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")
		bad := "call me"
		d.Phone = &bad

		result, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationNewBooking, Data: data})
		require.NoError(t, err)
		assert.NotNil(t, result.SMSError)
		assert.Empty(t, smsGateway.sent)
	})

	t.Run("no contact details sends nothing", func(t *testing.T) {
		svc, store, _, _ := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")
		d.Phone = nil
		d.Email = nil

		result, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: models.NotificationNewBooking})
		require.NoError(t, err)
		assert.False(t, result.AnySent())
	})

	t.Run("unknown type", func(t *testing.T) {
		svc, store, _, _ := newNotificationFixture()
		d := store.addDetailer(models.PricingModelPercentage, "")
		_, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: d.ID, Type: "marketing"})
		assert.True(t, errors.Is(err, ErrUnknownNotificationType))
	})

	t.Run("unknown detailer", func(t *testing.T) {
		svc, _, _, _ := newNotificationFixture()
		_, err := svc.Notify(ctx, models.NotificationRequest{DetailerID: uuid.New(), Type: models.NotificationNewBooking})
		assert.True(t, errors.Is(err, ErrDetailerNotFound))
	})
}

func TestRenderNotification_EscapesHTML(t *testing.T) {
	content := renderNotification(models.NotificationNewBooking, "<b>Sam</b>", map[string]string{"service_address": "1 <King> St"})
	assert.True(t, strings.Contains(content.HTML, "&lt;b&gt;Sam&lt;/b&gt;"))
	assert.True(t, strings.Contains(content.HTML, "1 &lt;King&gt; St"))
	assert.True(t, strings.Contains(content.PlainText, "1 <King> St"))
	assert.True(t, strings.HasPrefix(content.SMS, "CleanSwift: New detailing booking"))
}
