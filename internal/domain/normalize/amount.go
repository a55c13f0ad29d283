// Package normalize converts the loosely formatted amounts and dates found in
// invoice registers and bank exports into values the matcher can compare.
//
// Both parsers are total: malformed input never returns an error. Amounts
// degrade to zero and dates degrade to the -1 sentinel period.
//
// Example usage:
//
//	v := normalize.ParseAmount("1.234,56-") // -1234.56
//	p := normalize.ParseDate("15/08/25")    // Period{Year: 2025, Quarter: 3}
package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a European or plain formatted amount string.
//
// Rules, applied in order:
//   - everything except digits, ',', '.', '+' and '-' is dropped
//   - a trailing minus ("12,34-") marks the value as negative
//   - with both ',' and '.', '.' groups thousands and ',' is the decimal mark
//   - with only ',', it is the decimal mark
//   - with several '.' and no ',', every '.' groups thousands
//
// Unparseable input yields zero.
func ParseDecimal(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}

	if strings.HasSuffix(s, "-") {
		s = "-" + strings.TrimSuffix(s, "-")
	}
	negative := strings.Contains(s, "-")

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	hasComma := strings.Contains(clean, ",")
	switch {
	case hasComma && strings.Contains(clean, "."):
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case hasComma:
		clean = strings.Replace(clean, ",", ".", 1)
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	d = d.Abs()
	if negative {
		return d.Neg()
	}
	return d
}

// ParseAmount is ParseDecimal returned as a float for display and sorting.
func ParseAmount(raw string) float64 {
	f, _ := ParseDecimal(raw).Float64()
	return f
}
