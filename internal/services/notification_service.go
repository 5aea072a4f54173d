package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/email"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/sms"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/validator"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownNotificationType = errors.New("unknown notification type")
	ErrDetailerNotFound        = errors.New("detailer not found")
)

// NotificationService sends detailer notifications over SMS and email
type NotificationService struct {
	detailers DetailerStore
	sms       sms.Gateway
	senders   *sms.SenderDirectory
	phones    *validator.PhoneValidator
	email     email.Sender
	logger    *logrus.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	detailers DetailerStore,
	smsGateway sms.Gateway,
	senders *sms.SenderDirectory,
	phones *validator.PhoneValidator,
	emailSender email.Sender,
	logger *logrus.Logger,
) *NotificationService {
	return &NotificationService{
		detailers: detailers,
		sms:       smsGateway,
		senders:   senders,
		phones:    phones,
		email:     emailSender,
		logger:    logger,
	}
}

// NewNotificationServiceFromConfig picks the SMS and email providers by mode:
// "production" uses Twilio and SendGrid, anything else logs messages.
func NewNotificationServiceFromConfig(cfg *config.Config, detailers DetailerStore, logger *logrus.Logger) *NotificationService {
	var smsGateway sms.Gateway = sms.NewLogGateway(logger)
	if cfg.SMS.Mode == "production" {
		smsGateway = sms.NewTwilioGateway(sms.TwilioConfig{
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
		})
	}

	var emailSender email.Sender = email.NewLogSender(logger)
	if cfg.Email.Mode == "production" {
		emailSender = email.NewSendGridSender(email.SendGridConfig{
			APIKey:      cfg.Email.APIKey,
			FromEmail:   cfg.Email.FromEmail,
			FromName:    cfg.Email.FromName,
			SandboxMode: cfg.Email.SandboxMode,
		})
	}

	logger.WithFields(logrus.Fields{
		"sms_gateway":  smsGateway.GetName(),
		"email_sender": emailSender.GetName(),
	}).Info("Notification channels configured")

	return NewNotificationService(
		detailers,
		smsGateway,
		sms.NewSenderDirectory(cfg.SMS.DefaultSender, cfg.SMS.RegionSenders),
		validator.NewPhoneValidator(cfg.SMS.DefaultCountry),
		emailSender,
		logger,
	)
}

// Notify sends one notification. Each opted-in channel is attempted independently
// and in parallel; a channel failure is reported in the result, not as an error.
func (s *NotificationService) Notify(ctx context.Context, req models.NotificationRequest) (*models.NotificationResult, error) {
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%q: %w", req.Type, ErrUnknownNotificationType)
	}

	profile, err := s.detailers.GetNotificationProfile(ctx, req.DetailerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("detailer %s: %w", req.DetailerID, ErrDetailerNotFound)
	}

	content := renderNotification(req.Type, profile.FullName, req.Data)
	result := &models.NotificationResult{}
	log := s.logger.WithFields(logrus.Fields{
		"detailer_id":       req.DetailerID,
		"notification_type": req.Type,
	})

	var g errgroup.Group

	if profile.Preferences.Allows(req.Type, models.ChannelSMS) && profile.Phone != nil && *profile.Phone != "" {
		g.Go(func() error {
			id, err := s.sendSMS(ctx, *profile.Phone, content.SMS)
			if err != nil {
				msg := err.Error()
				result.SMSError = &msg
				log.WithError(err).Warn("SMS notification failed")
				return nil
			}
			result.SMSSent = true
			result.SMSProviderID = &id
			return nil
		})
	}

	if profile.Preferences.Allows(req.Type, models.ChannelEmail) && profile.Email != nil && *profile.Email != "" {
		g.Go(func() error {
			id, err := s.email.Send(ctx, email.Message{
				ToEmail:   *profile.Email,
				ToName:    profile.FullName,
				Subject:   content.Subject,
				PlainText: content.PlainText,
				HTML:      content.HTML,
			})
			if err != nil {
				msg := err.Error()
				result.EmailError = &msg
				log.WithError(err).Warn("Email notification failed")
				return nil
			}
			result.EmailSent = true
			if id != "" {
				result.EmailProviderID = &id
			}
			return nil
		})
	}

	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"sms_sent":   result.SMSSent,
		"email_sent": result.EmailSent,
	}).Info("Notification dispatched")
	return result, nil
}

// sendSMS normalizes the number and picks the sender for its region
func (s *NotificationService) sendSMS(ctx context.Context, phone, body string) (string, error) {
	e164, err := s.phones.NormalizeE164(phone)
	if err != nil {
		return "", fmt.Errorf("invalid phone number: %w", err)
	}
	from := s.senders.SenderFor(validator.RegionForE164(e164))
	return s.sms.Send(ctx, sms.Message{To: e164, From: from, Body: body})
}
