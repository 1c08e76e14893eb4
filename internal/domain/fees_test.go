package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webSchedule(t *testing.T) FeeSchedule {
	t.Helper()
	s, err := NewFeeSchedule("0.02", "0.029", "0.30")
	require.NoError(t, err)
	return s
}

func TestCalculateFees_HundredDollars(t *testing.T) {
	b := webSchedule(t).Calculate(decimal.RequireFromString("100.00"))

	assert.Equal(t, "100.00", b.TotalAmount.StringFixed(2))
	assert.Equal(t, "2.00", b.PlatformFee.StringFixed(2))
	assert.Equal(t, "3.20", b.ProcessorFee.StringFixed(2))
	assert.Equal(t, "98.00", b.ProviderAmount.StringFixed(2))
	assert.Equal(t, "-1.20", b.NetPlatformRevenue.StringFixed(2))
	assert.True(t, b.IsLossMaking())
}

func TestCalculateFees_NativeRate(t *testing.T) {
	s, err := NewFeeSchedule("0.075", "0.029", "0.30")
	require.NoError(t, err)

	b := s.Calculate(decimal.RequireFromString("250.00"))
	assert.Equal(t, "18.75", b.PlatformFee.StringFixed(2))
	assert.Equal(t, "231.25", b.ProviderAmount.StringFixed(2))
	assert.Equal(t, "7.55", b.ProcessorFee.StringFixed(2))
	assert.Equal(t, "11.20", b.NetPlatformRevenue.StringFixed(2))
	assert.False(t, b.IsLossMaking())
}

func TestCalculateFees_RoundsHalfAwayFromZero(t *testing.T) {
	// 0.25 * 0.02 = 0.005 -> 0.01
	b := webSchedule(t).Calculate(decimal.RequireFromString("0.25"))
	assert.Equal(t, "0.01", b.PlatformFee.StringFixed(2))
	assert.Equal(t, "0.24", b.ProviderAmount.StringFixed(2))
	// 0.25 * 0.029 + 0.30 = 0.30725 -> 0.31
	assert.Equal(t, "0.31", b.ProcessorFee.StringFixed(2))
	assert.Equal(t, "-0.30", b.NetPlatformRevenue.StringFixed(2))
}

func TestCalculateFees_SplitAddsUp(t *testing.T) {
	s := webSchedule(t)
	for cents := int64(1); cents <= 100_000; cents += 37 {
		b := s.CalculateMinor(cents)
		gross := MinorToDecimal(cents)

		require.True(t, b.ProviderAmount.Add(b.PlatformFee).Equal(gross), "split mismatch for %s", gross)
		for _, v := range []decimal.Decimal{b.TotalAmount, b.PlatformFee, b.ProviderAmount, b.ProcessorFee, b.NetPlatformRevenue} {
			require.True(t, v.Equal(v.Round(2)), "%s not rounded to cents", v)
		}
	}
}

func TestCalculateFees_Deterministic(t *testing.T) {
	s := webSchedule(t)
	a := s.Calculate(decimal.RequireFromString("123.45"))
	b := s.Calculate(decimal.RequireFromString("123.45"))
	assert.True(t, a.PlatformFee.Equal(b.PlatformFee))
	assert.True(t, a.ProcessorFee.Equal(b.ProcessorFee))
	assert.Equal(t, int64(12_098), a.ProviderAmountMinor())
}

func TestNewFeeScheduleValidation(t *testing.T) {
	cases := []struct {
		name                  string
		platform, rate, fixed string
		ok                    bool
	}{
		{name: "web", platform: "0.02", rate: "0.029", fixed: "0.30", ok: true},
		{name: "zero_platform", platform: "0", rate: "0.029", fixed: "0.30", ok: true},
		{name: "negative_platform", platform: "-0.01", rate: "0.029", fixed: "0.30"},
		{name: "platform_over_one", platform: "1", rate: "0.029", fixed: "0.30"},
		{name: "bad_number", platform: "two", rate: "0.029", fixed: "0.30"},
		{name: "negative_fixed", platform: "0.02", rate: "0.029", fixed: "-1"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFeeSchedule(tc.platform, tc.rate, tc.fixed)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}
