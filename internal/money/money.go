// Package money holds the decimal helpers shared by the pricing engine:
// lenient parsing of locale-formatted numbers, currency rounding, null-safe
// sums and the JSON wire type for monetary values.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fraction digits kept on display values.
const CurrencyPlaces = 2

var (
	hundred      = decimal.NewFromInt(100)
	five         = decimal.NewFromInt(5)
	nonNumericRe = regexp.MustCompile(`[^0-9,.\-]`)
)

// ── Parsing ──────────────────────────────────────────────────────

// Parse converts raw into a decimal. Strings go through ParseString; numeric
// Go types are converted exactly. Anything else, including NaN and
// infinities, yields an invalid (null) value. Parse never panics.
func Parse(raw any) decimal.NullDecimal {
	switch v := raw.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return decimal.NewNullDecimal(v)
	case *decimal.Decimal:
		if v == nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(*v)
	case decimal.NullDecimal:
		return v
	case Amount:
		return v.NullDecimal
	case string:
		return ParseString(v)
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return decimal.NewNullDecimal(d)
		}
		return ParseString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case float32:
		return Parse(float64(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case int32:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	case bool:
		return decimal.NullDecimal{}
	default:
		return ParseString(fmt.Sprint(v))
	}
}

// ParseString parses a number written with either "," or "." as the decimal
// separator. Currency symbols, letters and whitespace are dropped first.
//
// When both separators appear the rightmost one is the decimal point. When
// only one kind appears it is the decimal point if 1 to 6 digits follow its
// last occurrence, otherwise it separates thousands. A trailing minus sign
// ("10,00-") is accepted; more than one sign is rejected.
func ParseString(raw string) decimal.NullDecimal {
	s := strings.Join(strings.Fields(raw), "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	if strings.HasSuffix(s, "-") && strings.Count(s, "-") == 1 {
		s = "-" + s[:len(s)-1]
	}
	s = nonNumericRe.ReplaceAllString(s, "")

	switch s {
	case "", "-", ".", ",", "-.", "-,":
		return decimal.NullDecimal{}
	}
	if strings.Contains(s[1:], "-") {
		return decimal.NullDecimal{}
	}

	negative := s[0] == '-'
	if negative {
		s = s[1:]
	}

	intPart, fracPart := splitDecimal(s)
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	if negative {
		normalized = "-" + normalized
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// splitDecimal finds the decimal point in s and returns the digits on each side.
func splitDecimal(s string) (string, string) {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	sep := max(lastComma, lastDot)
	if sep < 0 {
		return s, ""
	}
	if lastComma >= 0 && lastDot >= 0 {
		return s[:sep], s[sep+1:]
	}

	trailing := len(s) - sep - 1
	if trailing >= 1 && trailing <= 6 {
		return s[:sep], s[sep+1:]
	}
	return s, ""
}

// ── Arithmetic ───────────────────────────────────────────────────

// Round rounds d half-up (away from zero) to two fraction digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Sum adds the valid values. The result is null only when every value is null.
func Sum(values ...decimal.NullDecimal) decimal.NullDecimal {
	total := decimal.Zero
	seen := false
	for _, v := range values {
		if !v.Valid {
			continue
		}
		total = total.Add(v.Decimal)
		seen = true
	}
	if !seen {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(total)
}

// OrZero returns the value of n, or zero when n is null.
func OrZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

// Factor reads values above 5 as whole percentages (60 means 0.6).
func Factor(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(five) {
		return d.Div(hundred)
	}
	return d
}

// Percent converts a whole percentage into a multiplier (60 -> 0.6).
func Percent(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(hundred)
}

// ── Formatting ───────────────────────────────────────────────────

// FormatBRL renders d as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	s := Round(d).Abs().StringFixed(CurrencyPlaces)
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.Round(CurrencyPlaces).IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + fracPart
}
