package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"colombian thousands", "1.234.567", 1234567},
		{"plain decimal", "1234.56", 1234.56},
		{"currency noise", "$8.500.000,00 COP", 8500000},
		{"us style", "1,234,567.89", 1234567.89},
		{"comma decimal", "1500,75", 1500.75},
		{"integer", "250000", 250000},
		{"negative", "-300.50", -300.50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAmount(tt.in)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestNormalizeAmountRejectsEmpty(t *testing.T) {
	_, err := NormalizeAmount("sin valor")
	require.Error(t, err)
}

func TestNormalizeCounterparty(t *testing.T) {
	got := NormalizeCounterparty("  Global   Consulting\tGroup sas ")
	require.Equal(t, "GLOBAL CONSULTING GROUP SAS", got)

	// Idempotent: normalizing a normalized value is a no-op.
	require.Equal(t, got, NormalizeCounterparty(got))
}

func TestNormalizeTaxID(t *testing.T) {
	require.Equal(t, "900123456-7", NormalizeTaxID("900.123.456-7"))
	require.Equal(t, "8001234561", NormalizeTaxID(" 800 123 456 1 "))
}

func TestNormalizeDate(t *testing.T) {
	require.Equal(t, "2025-03-10", NormalizeDate("2025-03-10"))
	require.Equal(t, "2025-03-10", NormalizeDate("10/03/2025"))
	require.Equal(t, "2025-03-10", NormalizeDate("2025/03/10"))
	require.Equal(t, "2025-03-10", NormalizeDate("10-03-2025"))

	// Unknown layouts pass through trimmed.
	require.Equal(t, "marzo 10 de 2025", NormalizeDate(" marzo 10 de 2025 "))
}
