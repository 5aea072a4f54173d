package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrInvalidFeePercent = errors.New("fee percent must be between 0 and 100")
)

// FeeCalculator computes the platform fee and detailer payout for a booking total.
// All amounts are cents; percentages are applied in basis points with half-up rounding.
type FeeCalculator struct {
	detailers                     DetailerStore
	defaultPercent                float64
	subscriptionProcessingPercent float64
}

// NewFeeCalculator creates a calculator using the configured default rates
func NewFeeCalculator(detailers DetailerStore, cfg config.FeeConfig) *FeeCalculator {
	return &FeeCalculator{
		detailers:                     detailers,
		defaultPercent:                cfg.PlatformFeePercent,
		subscriptionProcessingPercent: cfg.SubscriptionProcessingPercent,
	}
}

// CalculatePlatformFee returns the fee in cents.
// Rate precedence: percentageOverride, then the detailer's pricing model
// (subscription rate, or the detailer's own percentage), then the default.
func (f *FeeCalculator) CalculatePlatformFee(ctx context.Context, totalCents int64, percentageOverride *float64, detailerID *uuid.UUID) (int64, error) {
	if totalCents < 0 {
		return 0, ErrNegativeAmount
	}

	percent, err := f.resolvePercent(ctx, percentageOverride, detailerID)
	if err != nil {
		return 0, err
	}
	return feeForPercent(totalCents, percent)
}

// CalculateDetailerPayout returns (payout, fee) in cents. The payout is never negative.
func (f *FeeCalculator) CalculateDetailerPayout(ctx context.Context, totalCents int64, percentageOverride *float64, detailerID *uuid.UUID) (int64, int64, error) {
	fee, err := f.CalculatePlatformFee(ctx, totalCents, percentageOverride, detailerID)
	if err != nil {
		return 0, 0, err
	}
	payout := totalCents - fee
	if payout < 0 {
		payout = 0
	}
	return payout, fee, nil
}

func (f *FeeCalculator) resolvePercent(ctx context.Context, override *float64, detailerID *uuid.UUID) (float64, error) {
	if override != nil {
		return *override, nil
	}
	if detailerID == nil || f.detailers == nil {
		return f.defaultPercent, nil
	}

	detailer, err := f.detailers.GetDetailerByID(ctx, *detailerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load detailer pricing: %w", err)
	}
	if detailer == nil {
		return f.defaultPercent, nil
	}

	switch detailer.PricingModel {
	case models.PricingModelSubscription:
		return f.subscriptionProcessingPercent, nil
	default:
		if detailer.PlatformFeePercent != nil {
			return *detailer.PlatformFeePercent, nil
		}
		return f.defaultPercent, nil
	}
}

// feeForPercent applies percent to totalCents: basis points, half-up on the cent
func feeForPercent(totalCents int64, percent float64) (int64, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%v: %w", percent, ErrInvalidFeePercent)
	}
	bps := int64(math.Round(percent * 100))
	if totalCents > math.MaxInt64/10000 {
		return 0, fmt.Errorf("total %d too large", totalCents)
	}
	return (totalCents*bps + 5000) / 10000, nil
}
