package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		in   string
		want string // "" means null
	}{
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"R$ 1.234,56", "1234.56"},
		{"10,5", "10.5"},
		{"10.5", "10.5"},
		{"1.234", "1.234"},
		{"1.234.567", "1234.567"},
		{"1234567", "1234567"},
		{"1.2345678", "12345678"},
		{"  205,00 ", "205"},
		{"10,00-", "-10"},
		{"-3,5", "-3.5"},
		{",5", "0.5"},
		{"", ""},
		{"   ", ""},
		{"abc", ""},
		{"-", ""},
		{",", ""},
		{"-.", ""},
		{"--5", ""},
		{"5-5", ""},
		{"-5-", ""},
	}

	for _, tt := range tests {
		got := ParseString(tt.in)
		if tt.want == "" {
			if got.Valid {
				t.Errorf("ParseString(%q) = %s; want null", tt.in, got.Decimal)
			}
			continue
		}
		if !got.Valid {
			t.Errorf("ParseString(%q) = null; want %s", tt.in, tt.want)
			continue
		}
		if !got.Decimal.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseString(%q) = %s; want %s", tt.in, got.Decimal, tt.want)
		}
	}
}

func TestParseTypes(t *testing.T) {
	if got := Parse(nil); got.Valid {
		t.Errorf("Parse(nil) = %s; want null", got.Decimal)
	}
	if got := Parse(true); got.Valid {
		t.Errorf("Parse(true) = %s; want null", got.Decimal)
	}
	if got := Parse(math.NaN()); got.Valid {
		t.Errorf("Parse(NaN) = %s; want null", got.Decimal)
	}
	if got := Parse(0.3); !got.Valid || !got.Decimal.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("Parse(0.3) = %v; want 0.3", got)
	}
	if got := Parse(7); !got.Valid || got.Decimal.IntPart() != 7 {
		t.Errorf("Parse(7) = %v; want 7", got)
	}
	if got := Parse(json.Number("12.50")); !got.Valid || !got.Decimal.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Parse(json.Number) = %v; want 12.5", got)
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want string }{
		{"10.275", "10.28"},
		{"0.005", "0.01"},
		{"0.004", "0"},
		{"1.115", "1.12"},
		{"-1.115", "-1.12"},
		{"205", "205"},
	}
	for _, tt := range tests {
		got := Round(decimal.RequireFromString(tt.in))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Round(%s) = %s; want %s", tt.in, got, tt.want)
		}
	}
}

func TestSum(t *testing.T) {
	null := decimal.NullDecimal{}
	if got := Sum(null, null, null); got.Valid {
		t.Errorf("Sum(all null) = %s; want null", got.Decimal)
	}
	if got := Sum(); got.Valid {
		t.Errorf("Sum() = %s; want null", got.Decimal)
	}

	got := Sum(null, decimal.NewNullDecimal(decimal.NewFromInt(5)), null)
	if !got.Valid || !got.Decimal.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Sum(null, 5, null) = %v; want 5", got)
	}

	zero := decimal.NewNullDecimal(decimal.Zero)
	if got := Sum(null, zero); !got.Valid || !got.Decimal.IsZero() {
		t.Errorf("Sum(null, 0) = %v; want 0", got)
	}
}

func TestFactor(t *testing.T) {
	tests := []struct{ in, want string }{
		{"60", "0.6"},
		{"5", "5"},
		{"0.5", "0.5"},
		{"150", "1.5"},
	}
	for _, tt := range tests {
		got := Factor(decimal.RequireFromString(tt.in))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Factor(%s) = %s; want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1234.56", "R$ 1.234,56"},
		{"0.5", "R$ 0,50"},
		{"1234567.891", "R$ 1.234.567,89"},
		{"-10", "-R$ 10,00"},
		{"999", "R$ 999,00"},
	}
	for _, tt := range tests {
		if got := FormatBRL(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatBRL(%s) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(AmountOf(decimal.RequireFromString("205")))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"205.00"` {
		t.Errorf("Marshal(205) = %s; want \"205.00\"", b)
	}

	b, _ = json.Marshal(Amount{})
	if string(b) != "null" {
		t.Errorf("Marshal(null) = %s; want null", b)
	}

	var in struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
		D Amount `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a": 10.5, "b": "1.234,56", "c": null, "d": ""}`), &in); err != nil {
		t.Fatal(err)
	}
	if !in.A.Valid || !in.A.Decimal.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("a = %v; want 10.5", in.A)
	}
	if !in.B.Valid || !in.B.Decimal.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("b = %v; want 1234.56", in.B)
	}
	if in.C.Valid || in.D.Valid {
		t.Errorf("c, d = %v, %v; want null, null", in.C, in.D)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "1.10", "205.00", "1234567.89", "-42.42", "0.005"} {
		want := Round(decimal.RequireFromString(s))
		wire := AmountOf(want).String()
		got := ParseString(wire)
		if !got.Valid || !Round(got.Decimal).Equal(want) {
			t.Errorf("round trip %s -> %q -> %v; want %s", s, wire, got, want)
		}
	}
}
