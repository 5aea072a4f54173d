package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrMissingRecipient is returned when a message has no destination number
var ErrMissingRecipient = errors.New("sms recipient is required")

// messageCreator is the part of the Twilio REST client the gateway uses
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds configuration for the Twilio gateway
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// TwilioGateway implements SMS sending via the Twilio Messages API
type TwilioGateway struct {
	api messageCreator
}

// NewTwilioGateway creates a new Twilio SMS gateway
func NewTwilioGateway(config TwilioConfig) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &TwilioGateway{api: client.Api}
}

// Send delivers msg and returns the Twilio message SID
func (g *TwilioGateway) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrMissingRecipient
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(msg.From)
	params.SetBody(msg.Body)

	resp, err := g.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("twilio response missing message sid")
	}
	return *resp.Sid, nil
}

// GetName returns the gateway name
func (g *TwilioGateway) GetName() string {
	return "twilio"
}
