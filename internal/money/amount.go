package money

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a nullable decimal that crosses the JSON boundary as a fixed
// two-place string ("205.00") or null. On input it also accepts bare JSON
// numbers and locale-formatted strings ("1.234,56").
type Amount struct {
	decimal.NullDecimal
}

// NewAmount wraps n.
func NewAmount(n decimal.NullDecimal) Amount {
	return Amount{NullDecimal: n}
}

// AmountOf wraps a known value.
func AmountOf(d decimal.Decimal) Amount {
	return Amount{NullDecimal: decimal.NewNullDecimal(d)}
}

// String returns the wire representation without quotes, or "" for null.
func (a Amount) String() string {
	if !a.Valid {
		return ""
	}
	return a.Decimal.StringFixed(CurrencyPlaces)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable input becomes null.
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null" || raw == "":
		a.NullDecimal = decimal.NullDecimal{}
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.NullDecimal = ParseString(s)
	default:
		if d, err := decimal.NewFromString(raw); err == nil {
			a.NullDecimal = decimal.NewNullDecimal(d)
		} else {
			a.NullDecimal = ParseString(raw)
		}
	}
	return nil
}
