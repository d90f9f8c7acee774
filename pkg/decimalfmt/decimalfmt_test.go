package decimalfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/tradecore/internal/money"
)

func mustParseMoney(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	require.NoError(t, err)
	return m
}

func TestToSmallestUnitTruncatesFinerFraction(t *testing.T) {
	units := ToSmallestUnit(mustParseMoney(t, "1.23456789"), 8)
	assert.Equal(t, int64(123456789), units)
}

func TestFromSmallestUnitRoundTrips(t *testing.T) {
	m, err := FromSmallestUnit(150000000, 8)
	require.NoError(t, err)
	assert.Equal(t, "1.5", m.String())
}

func TestFormatPadsToExactDecimals(t *testing.T) {
	assert.Equal(t, "1.50000000", Format(mustParseMoney(t, "1.5"), 8))
	assert.Equal(t, "12.34", Format(mustParseMoney(t, "12.34"), 2))
}

func TestParseFixedRejectsTooManyFractionalDigits(t *testing.T) {
	_, err := ParseFixed("1.234", 2)
	assert.Error(t, err)
}

func TestParseFixedAcceptsValidAmount(t *testing.T) {
	m, err := ParseFixed("1.23", 2)
	require.NoError(t, err)
	assert.Equal(t, "1.23", m.String())
}
