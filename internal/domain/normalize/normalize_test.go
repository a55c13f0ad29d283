package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"european thousands and decimals", "1.234,56", 1234.56},
		{"trailing minus", "12,34-", -12.34},
		{"leading minus", "-1.234,56", -1234.56},
		{"plain decimal point", "100.50", 100.50},
		{"decimal comma only", "100,50", 100.50},
		{"currency symbol and spaces", " 1.234,56 € ", 1234.56},
		{"integer", "42", 42},
		{"several thousands points", "1.234.567", 1234567},
		{"explicit plus", "+15,00", 15},
		{"empty", "", 0},
		{"garbage", "abc", 0},
		{"zero", "0,00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseAmount(tt.raw), 0.0000001)
		})
	}
}

func TestParseDecimal_IsExact(t *testing.T) {
	got := ParseDecimal("1.234,56")
	assert.True(t, got.Equal(decimal.RequireFromString("1234.56")), "got %s", got)

	sum := ParseDecimal("100,10").Add(ParseDecimal("-100,15"))
	assert.True(t, sum.Equal(decimal.RequireFromString("-0.05")), "got %s", sum)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Period
	}{
		{"slashes", "15/08/2025", Period{Year: 2025, Quarter: 3}},
		{"two digit year", "01.02.24", Period{Year: 2024, Quarter: 1}},
		{"dashes", "31-12-2023", Period{Year: 2023, Quarter: 4}},
		{"april is second quarter", "1/4/2025", Period{Year: 2025, Quarter: 2}},
		{"iso order", "2025-06-30", Period{Year: 2025, Quarter: 2}},
		{"time suffix", "15/08/2025 00:00:00", Period{Year: 2025, Quarter: 3}},
		{"too few parts", "08/2025", UnknownPeriod},
		{"empty", "", UnknownPeriod},
		{"non numeric year", "15/08/yyyy", UnknownPeriod},
		{"month out of range", "15/13/2025", Period{Year: 2025, Quarter: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.raw))
		})
	}
}

func TestPeriod_Valid(t *testing.T) {
	assert.True(t, Period{Year: 2025, Quarter: 1}.Valid())
	assert.False(t, Period{Year: 2000, Quarter: 1}.Valid())
	assert.False(t, Period{Year: 2025, Quarter: -1}.Valid())
	assert.False(t, UnknownPeriod.Valid())

	assert.True(t, Period{Year: 2025, Quarter: -1}.HasYear())
	assert.False(t, Period{Year: 2000, Quarter: 1}.HasYear())
	assert.False(t, UnknownPeriod.HasYear())

	assert.Equal(t, "2025-Q3", Period{Year: 2025, Quarter: 3}.String())
	assert.Equal(t, "unknown", UnknownPeriod.String())
}
