package payment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.34", FormatAmount(12_34, "USD"))
	require.Equal(t, "0.05", FormatAmount(5, "EUR"))
	require.Equal(t, "-3.50", FormatAmount(-3_50, "USD"))
	require.Equal(t, "500", FormatAmount(500, "JPY"))
	require.Equal(t, "1000", FormatAmount(1000, "krw"))
}

func TestParseAmountRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		amount   int64
		currency string
	}{
		{12_34, "USD"},
		{99, "EUR"},
		{500, "JPY"},
		{0, "USD"},
		{10_00_00, "GBP"},
	} {
		parsed, err := ParseAmount(FormatAmount(tc.amount, tc.currency), tc.currency)
		require.NoError(t, err)
		require.Equal(t, tc.amount, parsed, "%d %s", tc.amount, tc.currency)
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseAmount("12,34", "USD")
	require.Error(t, err)

	parsed, err := ParseAmount("", "USD")
	require.NoError(t, err)
	require.EqualValues(t, 0, parsed)
}

func TestZeroDecimal(t *testing.T) {
	t.Parallel()

	require.True(t, ZeroDecimal("JPY"))
	require.True(t, ZeroDecimal(" vnd "))
	require.False(t, ZeroDecimal("USD"))
	require.False(t, ZeroDecimal("INR"))
}
