package cbhpm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// Ceiling statuses.
const (
	CeilingOK       = "OK"
	CeilingExceeded = "ULTRAPASSA"
)

// CeilingCheck is the comparison of a computed total against a ceiling.
type CeilingCheck struct {
	Found       bool
	Value       decimal.NullDecimal
	Description string
	Exceeded    bool
	Excess      decimal.NullDecimal
	Status      string
}

// CeilingAlert describes an item priced above its ceiling.
type CeilingAlert struct {
	Code               string       `json:"codigo"`
	Description        string       `json:"descricao"`
	ComputedTotal      money.Amount `json:"total_calculado"`
	CeilingValue       money.Amount `json:"teto_valor_total"`
	Excess             money.Amount `json:"excedente"`
	CeilingDescription string       `json:"descricao_teto"`
	Message            string       `json:"mensagem"`
}

// ceilingMessage is the alert text shown to the user.
func ceilingMessage(code string, computed decimal.NullDecimal, check CeilingCheck) string {
	if !computed.Valid || !check.Value.Valid || !check.Excess.Valid {
		return ""
	}
	return fmt.Sprintf("%s: total %s ultrapassa o teto de %s em %s.",
		code,
		money.FormatBRL(computed.Decimal),
		money.FormatBRL(check.Value.Decimal),
		money.FormatBRL(check.Excess.Decimal))
}

// CheckCeiling compares computed against entry. A nil entry means the code
// has no ceiling and is always OK. The excess is rounded half-up to cents
// and reported only when positive.
func CheckCeiling(entry *catalog.Ceiling, computed decimal.NullDecimal) CeilingCheck {
	if entry == nil {
		return CeilingCheck{Status: CeilingOK}
	}

	check := CeilingCheck{
		Found:       true,
		Value:       decimal.NewNullDecimal(entry.Total),
		Description: entry.Description,
		Status:      CeilingOK,
	}
	if !computed.Valid {
		return check
	}

	diff := money.Round(computed.Decimal.Sub(entry.Total))
	if diff.IsPositive() {
		check.Exceeded = true
		check.Excess = decimal.NewNullDecimal(diff)
		check.Status = CeilingExceeded
	}
	return check
}
