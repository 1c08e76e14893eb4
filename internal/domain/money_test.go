package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(25_050, "USD") // 250.50 USD
	assert.Equal(t, "250.5", m.ToDecimal().String())
	assert.Equal(t, "usd", m.Currency)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1050), ToMinorUnits(decimal.RequireFromString("10.50")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, int64(-1), ToMinorUnits(decimal.RequireFromString("-0.005")))
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 250.00 ")
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), ToMinorUnits(d))

	_, err = ParseAmount("12.345")
	require.Error(t, err)

	_, err = ParseAmount("abc")
	require.Error(t, err)
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "98.00 USD", NewMoney(9_800, "usd").String())
}
