package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckDigit(t *testing.T) {
	d, err := CheckDigit("02840059600")
	require.NoError(t, err)
	require.Equal(t, 8, d)

	_, err = CheckDigit("123")
	require.Error(t, err)
}

func TestValidateUPC(t *testing.T) {
	text, ok := ValidateUPC("028400596008")
	require.True(t, ok)
	require.Contains(t, text, "Valid UPC-A")

	text, ok = ValidateUPC("0-28400-59600-1")
	require.False(t, ok)
	require.Contains(t, text, "Expected check digit: 8, got: 1")

	_, ok = ValidateUPC("01234565")
	require.True(t, ok)

	text, ok = ValidateUPC("12345")
	require.False(t, ok)
	require.Contains(t, text, "Got 5 digits")
}

func TestRepairUPC(t *testing.T) {
	got, err := RepairUPC("02840059600")
	require.NoError(t, err)
	require.Equal(t, "028400596008", got)

	got, err = RepairUPC("028400596001")
	require.NoError(t, err)
	require.Equal(t, "028400596008", got)

	got, err = RepairUPC("2840059600")
	require.NoError(t, err)
	require.Equal(t, "028400596008", got)

	_, err = RepairUPC("1234567890123")
	require.Error(t, err)
}

func TestUPCTools(t *testing.T) {
	ctx := context.Background()

	res := NewUPCValidator().Invoke(ctx, map[string]any{"upc": "028400596008"})
	require.Contains(t, res.Text, "Valid UPC-A")
	require.False(t, res.Match)

	res = NewUPCValidator().Invoke(ctx, map[string]any{})
	require.Contains(t, res.Text, "upc is required")

	res = NewCheckDigitCalculator().Invoke(ctx, map[string]any{"code": "02840059600"})
	require.Contains(t, res.Text, "Complete UPC with check digit: 028400596008")
}
