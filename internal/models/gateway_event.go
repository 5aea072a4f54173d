package models

import "github.com/google/uuid"

// Gateway event type strings as delivered by Stripe
const (
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventPaymentIntentCanceled      = "payment_intent.canceled"
	EventSubscriptionCreated        = "customer.subscription.created"
	EventSubscriptionUpdated        = "customer.subscription.updated"
	EventSubscriptionDeleted        = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
	EventTransferCreated            = "transfer.created"
	EventTransferPaid               = "transfer.paid"
	EventTransferFailed             = "transfer.failed"
)

// GatewayEvent is a verified, parsed payment gateway event.
// The set of implementations is closed; the reconciler switches on the concrete type.
type GatewayEvent interface {
	EventID() string
	EventType() string
	gatewayEvent()
}

// EventMeta is embedded by every gateway event
type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (EventMeta) gatewayEvent()       {}

// PaymentIntentData is the payment intent payload shared by the payment events
type PaymentIntentData struct {
	PaymentIntentID string
	BookingID       *uuid.UUID // from metadata.booking_id; nil when absent or malformed
	AmountCents     int64      // amount_received when set, otherwise amount
	Currency        string
	ChargeID        *string
	FailureMessage  *string
}

// PaymentSucceededEvent is payment_intent.succeeded
type PaymentSucceededEvent struct {
	EventMeta
	PaymentIntentData
}

// PaymentFailedEvent is payment_intent.payment_failed
type PaymentFailedEvent struct {
	EventMeta
	PaymentIntentData
}

// PaymentCanceledEvent is payment_intent.canceled
type PaymentCanceledEvent struct {
	EventMeta
	PaymentIntentData
}

// SubscriptionChangedEvent is customer.subscription.created or .updated
type SubscriptionChangedEvent struct {
	EventMeta
	SubscriptionID string
	DetailerID     *uuid.UUID
	Status         string
}

// SubscriptionDeletedEvent is customer.subscription.deleted
type SubscriptionDeletedEvent struct {
	EventMeta
	SubscriptionID string
	DetailerID     *uuid.UUID
}

// InvoicePaymentEvent is invoice.payment_succeeded or .payment_failed
type InvoicePaymentEvent struct {
	EventMeta
	InvoiceID      string
	SubscriptionID string
	AmountCents    int64
	Currency       string
	Succeeded      bool
}

// TransferData is the connect transfer payload shared by the transfer events
type TransferData struct {
	ExternalTransferID string     // tr_...
	TransferID         *uuid.UUID // from metadata.transfer_id
	AmountCents        int64
	Currency           string
	FailureMessage     *string
}

// TransferCreatedEvent is transfer.created
type TransferCreatedEvent struct {
	EventMeta
	TransferData
}

// TransferPaidEvent is transfer.paid
type TransferPaidEvent struct {
	EventMeta
	TransferData
}

// TransferFailedEvent is transfer.failed
type TransferFailedEvent struct {
	EventMeta
	TransferData
}

// UnknownEvent is any event type this service does not handle
type UnknownEvent struct {
	EventMeta
}

// ObjectID returns the gateway object id the event refers to, for audit rows
func ObjectID(e GatewayEvent) string {
	switch ev := e.(type) {
	case *PaymentSucceededEvent:
		return ev.PaymentIntentID
	case *PaymentFailedEvent:
		return ev.PaymentIntentID
	case *PaymentCanceledEvent:
		return ev.PaymentIntentID
	case *SubscriptionChangedEvent:
		return ev.SubscriptionID
	case *SubscriptionDeletedEvent:
		return ev.SubscriptionID
	case *InvoicePaymentEvent:
		return ev.InvoiceID
	case *TransferCreatedEvent:
		return ev.ExternalTransferID
	case *TransferPaidEvent:
		return ev.ExternalTransferID
	case *TransferFailedEvent:
		return ev.ExternalTransferID
	}
	return ""
}

// BookingIDOf returns the booking referenced by a payment event, if any
func BookingIDOf(e GatewayEvent) *uuid.UUID {
	switch ev := e.(type) {
	case *PaymentSucceededEvent:
		return ev.BookingID
	case *PaymentFailedEvent:
		return ev.BookingID
	case *PaymentCanceledEvent:
		return ev.BookingID
	}
	return nil
}
