package database

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// Numeric columns are selected as ::text and parsed here, so imported
// values keep their exact decimal digits.
func nullDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	return money.ParseString(*s)
}

func textOrNil(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// likeEscape escapes the LIKE wildcards in s.
func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
