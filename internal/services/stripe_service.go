package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrWebhookSecretsMissing = errors.New("no webhook signing secret configured")
	ErrInvalidSignature      = errors.New("webhook signature verification failed")
	ErrNoPayoutDestination   = errors.New("detailer has no connected account")
)

// transferCreator is the part of the Stripe client used for payouts
type transferCreator interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

// StripeService wraps Stripe webhook verification, event parsing and Connect transfers
type StripeService struct {
	secretKey       string
	currency        string
	primarySecret   string
	secondarySecret string
	transfers       transferCreator
	logger          *logrus.Logger
}

// NewStripeService creates a Stripe service from configuration.
// A client is always built; IsConfigured reports whether it can make API calls.
func NewStripeService(cfg *config.Config, logger *logrus.Logger) *StripeService {
	sc := &client.API{}
	sc.Init(cfg.Stripe.SecretKey, nil)

	return &StripeService{
		secretKey:       cfg.Stripe.SecretKey,
		currency:        strings.ToLower(cfg.Stripe.Currency),
		primarySecret:   cfg.Webhook.PrimarySecret,
		secondarySecret: cfg.Webhook.SecondarySecret,
		transfers:       sc.Transfers,
		logger:          logger,
	}
}

// IsConfigured reports whether a Stripe API key is present
func (s *StripeService) IsConfigured() bool {
	return s.secretKey != ""
}

// ============================================================================
// WEBHOOKS
// ============================================================================

// VerifyWebhook checks the Stripe-Signature header against the primary secret,
// then the secondary (Connect) secret. The raw body must be passed unmodified.
func (s *StripeService) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, models.WebhookEndpoint, error) {
	if s.primarySecret == "" && s.secondarySecret == "" {
		return stripe.Event{}, "", ErrWebhookSecretsMissing
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	candidates := []struct {
		secret   string
		endpoint models.WebhookEndpoint
	}{
		{s.primarySecret, models.WebhookEndpointPrimary},
		{s.secondarySecret, models.WebhookEndpointSecondary},
	}

	var lastErr error
	for _, c := range candidates {
		if c.secret == "" {
			continue
		}
		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.secret, opts)
		if err == nil {
			return event, c.endpoint, nil
		}
		lastErr = err
	}
	return stripe.Event{}, "", fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

// invoicePayload reads the fields used from an invoice. The subscription id moved
// under parent.subscription_details in newer API versions; both shapes are accepted.
type invoicePayload struct {
	ID           string     `json:"id"`
	Subscription expandable `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
}

func (p invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// expandable is an object reference that arrives as an id string or an expanded object
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*e = expandable(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

// ParseEvent converts a verified Stripe event into the closed GatewayEvent set.
// Event types that are not handled become *models.UnknownEvent.
func (s *StripeService) ParseEvent(event stripe.Event) (models.GatewayEvent, error) {
	meta := models.EventMeta{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return &models.UnknownEvent{EventMeta: meta}, nil
	}
	raw := event.Data.Raw

	switch meta.Type {
	case models.EventPaymentIntentSucceeded, models.EventPaymentIntentPaymentFailed, models.EventPaymentIntentCanceled:
		data, err := parsePaymentIntent(raw)
		if err != nil {
			return nil, err
		}
		switch meta.Type {
		case models.EventPaymentIntentSucceeded:
			return &models.PaymentSucceededEvent{EventMeta: meta, PaymentIntentData: *data}, nil
		case models.EventPaymentIntentPaymentFailed:
			return &models.PaymentFailedEvent{EventMeta: meta, PaymentIntentData: *data}, nil
		default:
			return &models.PaymentCanceledEvent{EventMeta: meta, PaymentIntentData: *data}, nil
		}

	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated, models.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		detailerID := metadataUUID(sub.Metadata, "detailer_id")
		if meta.Type == models.EventSubscriptionDeleted {
			return &models.SubscriptionDeletedEvent{EventMeta: meta, SubscriptionID: sub.ID, DetailerID: detailerID}, nil
		}
		return &models.SubscriptionChangedEvent{
			EventMeta:      meta,
			SubscriptionID: sub.ID,
			DetailerID:     detailerID,
			Status:         string(sub.Status),
		}, nil

	case models.EventInvoicePaymentSucceeded, models.EventInvoicePaymentFailed:
		var inv invoicePayload
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		succeeded := meta.Type == models.EventInvoicePaymentSucceeded
		amount := inv.AmountDue
		if succeeded {
			amount = inv.AmountPaid
		}
		return &models.InvoicePaymentEvent{
			EventMeta:      meta,
			InvoiceID:      inv.ID,
			SubscriptionID: inv.subscriptionID(),
			AmountCents:    amount,
			Currency:       inv.Currency,
			Succeeded:      succeeded,
		}, nil

	case models.EventTransferCreated, models.EventTransferPaid, models.EventTransferFailed:
		data, err := parseTransfer(raw)
		if err != nil {
			return nil, err
		}
		switch meta.Type {
		case models.EventTransferCreated:
			return &models.TransferCreatedEvent{EventMeta: meta, TransferData: *data}, nil
		case models.EventTransferPaid:
			return &models.TransferPaidEvent{EventMeta: meta, TransferData: *data}, nil
		default:
			return &models.TransferFailedEvent{EventMeta: meta, TransferData: *data}, nil
		}
	}

	return &models.UnknownEvent{EventMeta: meta}, nil
}

func parsePaymentIntent(raw json.RawMessage) (*models.PaymentIntentData, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	data := &models.PaymentIntentData{
		PaymentIntentID: pi.ID,
		BookingID:       metadataUUID(pi.Metadata, "booking_id"),
		AmountCents:     pi.Amount,
		Currency:        string(pi.Currency),
	}
	if pi.AmountReceived > 0 {
		data.AmountCents = pi.AmountReceived
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		chargeID := pi.LatestCharge.ID
		data.ChargeID = &chargeID
	}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		msg := pi.LastPaymentError.Msg
		data.FailureMessage = &msg
	}
	return data, nil
}

func parseTransfer(raw json.RawMessage) (*models.TransferData, error) {
	var tr stripe.Transfer
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode transfer: %w", err)
	}
	var failure struct {
		FailureMessage *string `json:"failure_message"`
	}
	_ = json.Unmarshal(raw, &failure)

	return &models.TransferData{
		ExternalTransferID: tr.ID,
		TransferID:         metadataUUID(tr.Metadata, "transfer_id"),
		AmountCents:        tr.Amount,
		Currency:           string(tr.Currency),
		FailureMessage:     failure.FailureMessage,
	}, nil
}

// metadataUUID returns nil when the key is absent or not a UUID
func metadataUUID(metadata map[string]string, key string) *uuid.UUID {
	value, ok := metadata[key]
	if !ok || value == "" {
		return nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil
	}
	return &id
}

// ============================================================================
// CONNECT TRANSFERS
// ============================================================================

// CreateTransfer submits a payout to the detailer's connected account and returns
// the Stripe transfer id. The idempotency key changes with each recorded failure.
func (s *StripeService) CreateTransfer(ctx context.Context, t *models.Transfer) (string, error) {
	if t.DestinationAccount == nil || *t.DestinationAccount == "" {
		return "", ErrNoPayoutDestination
	}

	currency := t.Currency
	if currency == "" {
		currency = s.currency
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(t.AmountCents),
		Currency:      stripe.String(strings.ToLower(currency)),
		Destination:   stripe.String(*t.DestinationAccount),
		TransferGroup: stripe.String("booking_" + t.BookingID.String()),
	}
	params.Context = ctx
	params.SetIdempotencyKey(t.IdempotencyKey())
	params.AddMetadata("transfer_id", t.ID.String())
	params.AddMetadata("booking_id", t.BookingID.String())
	params.AddMetadata("detailer_id", t.DetailerID.String())

	tr, err := s.transfers.New(params)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"transfer_id": t.ID,
			"retry_count": t.RetryCount,
			"retryable":   IsRetryableError(err),
		}).WithError(err).Warn("Stripe transfer creation failed")
		return "", fmt.Errorf("failed to create stripe transfer: %w", err)
	}
	return tr.ID, nil
}

// StripeErrorMessage returns a short message for logging and error_message columns
func StripeErrorMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code != "" {
			return fmt.Sprintf("%s: %s", stripeErr.Code, stripeErr.Msg)
		}
		return stripeErr.Msg
	}
	return err.Error()
}

// IsRetryableError reports whether a Stripe call may succeed if repeated:
// 5xx, rate limiting, lock timeouts and transient network failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode < 600 {
			return true
		}
		switch stripeErr.Code {
		case stripe.ErrorCodeRateLimit, stripe.ErrorCodeLockTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
