package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeSchedule holds the rates used to split a gross amount.
// The platform rate differs between deployments, so it is always supplied by configuration.
type FeeSchedule struct {
	PlatformRate   decimal.Decimal
	ProcessorRate  decimal.Decimal
	ProcessorFixed decimal.Decimal
}

// FeeBreakdown is the three-way split of a gross amount. All fields are in major units,
// rounded to two decimal places.
type FeeBreakdown struct {
	TotalAmount        decimal.Decimal
	PlatformFee        decimal.Decimal
	ProviderAmount     decimal.Decimal
	ProcessorFee       decimal.Decimal
	NetPlatformRevenue decimal.Decimal
}

// NewFeeSchedule parses rate strings, e.g. ("0.02", "0.029", "0.30").
func NewFeeSchedule(platformRate, processorRate, processorFixed string) (FeeSchedule, error) {
	pr, err := decimal.NewFromString(platformRate)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("invalid platform fee rate %q: %w", platformRate, err)
	}
	cr, err := decimal.NewFromString(processorRate)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("invalid processor fee rate %q: %w", processorRate, err)
	}
	cf, err := decimal.NewFromString(processorFixed)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("invalid processor fixed fee %q: %w", processorFixed, err)
	}
	s := FeeSchedule{PlatformRate: pr, ProcessorRate: cr, ProcessorFixed: cf}
	if err := s.Validate(); err != nil {
		return FeeSchedule{}, err
	}
	return s, nil
}

// Validate checks that rates are fractions in [0, 1) and the fixed fee is non-negative.
func (s FeeSchedule) Validate() error {
	one := decimal.NewFromInt(1)
	if s.PlatformRate.IsNegative() || s.PlatformRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("platform fee rate must be in [0, 1), got %s", s.PlatformRate)
	}
	if s.ProcessorRate.IsNegative() || s.ProcessorRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("processor fee rate must be in [0, 1), got %s", s.ProcessorRate)
	}
	if s.ProcessorFixed.IsNegative() {
		return fmt.Errorf("processor fixed fee must not be negative, got %s", s.ProcessorFixed)
	}
	return nil
}

// Calculate splits gross into provider payout, platform fee and processor fee.
// Callers reject non-positive amounts before calling; Calculate itself does not.
//
// The provider amount is derived from the rounded platform fee so that
// ProviderAmount + PlatformFee == TotalAmount holds after rounding as well.
func (s FeeSchedule) Calculate(gross decimal.Decimal) FeeBreakdown {
	total := gross.Round(2)
	platformFee := gross.Mul(s.PlatformRate).Round(2)
	processorFee := gross.Mul(s.ProcessorRate).Add(s.ProcessorFixed).Round(2)
	return FeeBreakdown{
		TotalAmount:        total,
		PlatformFee:        platformFee,
		ProviderAmount:     total.Sub(platformFee),
		ProcessorFee:       processorFee,
		NetPlatformRevenue: platformFee.Sub(processorFee),
	}
}

// CalculateMinor is Calculate for an amount in minor units.
func (s FeeSchedule) CalculateMinor(grossMinor int64) FeeBreakdown {
	return s.Calculate(MinorToDecimal(grossMinor))
}

// ProviderAmountMinor returns the provider payout in minor units.
func (b FeeBreakdown) ProviderAmountMinor() int64 {
	return ToMinorUnits(b.ProviderAmount)
}

// IsLossMaking reports whether the processor fee exceeds the platform fee.
func (b FeeBreakdown) IsLossMaking() bool {
	return b.NetPlatformRevenue.IsNegative()
}
