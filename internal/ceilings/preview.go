// Package ceilings validates ceiling (teto) imports and keeps the pending
// previews until an admin confirms them.
package ceilings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// Row is one submitted ceiling line.
type Row struct {
	Code        string       `json:"codigo"`
	Description string       `json:"descricao"`
	Value       money.Amount `json:"valor_total"`
}

// PreviewRow is a validated line. Line is the 1-based position it was
// submitted at.
type PreviewRow struct {
	Line        int          `json:"linha"`
	Code        string       `json:"codigo"`
	Description string       `json:"descricao"`
	Value       money.Amount `json:"valor_total"`
}

// Preview is the outcome of validating an import, waiting for confirmation.
type Preview struct {
	Token          string       `json:"token,omitempty"`
	CreatedAt      time.Time    `json:"criado_em"`
	Rows           []PreviewRow `json:"linhas"`
	Errors         []string     `json:"erros"`
	TotalInput     int          `json:"total_entrada"`
	ValidCount     int          `json:"validos"`
	DuplicateCount int          `json:"duplicados"`
}

// BuildPreview validates rows. A code submitted more than once keeps its
// last occurrence, placed where that occurrence was.
func BuildPreview(rows []Row) Preview {
	p := Preview{
		Rows:       []PreviewRow{},
		Errors:     []string{},
		TotalInput: len(rows),
	}

	records := map[string]PreviewRow{}
	var order []string

	for i, row := range rows {
		line := i + 1

		code := catalog.NormalizeCode(row.Code)
		if code == "" {
			p.Errors = append(p.Errors, fmt.Sprintf("Linha %d: campo 'codigo' é obrigatório.", line))
			continue
		}
		desc := strings.TrimSpace(row.Description)
		if desc == "" {
			p.Errors = append(p.Errors, fmt.Sprintf("Linha %d (%s): campo 'descricao' é obrigatório.", line, code))
			continue
		}
		if !row.Value.Valid {
			p.Errors = append(p.Errors, fmt.Sprintf("Linha %d (%s): valor_total inválido.", line, code))
			continue
		}
		if !row.Value.Decimal.IsPositive() {
			p.Errors = append(p.Errors, fmt.Sprintf("Linha %d (%s): valor_total deve ser maior que zero.", line, code))
			continue
		}

		if _, dup := records[code]; dup {
			p.DuplicateCount++
			order = removeCode(order, code)
		}
		order = append(order, code)
		records[code] = PreviewRow{
			Line:        line,
			Code:        code,
			Description: desc,
			Value:       money.AmountOf(money.Round(row.Value.Decimal)),
		}
	}

	for _, code := range order {
		p.Rows = append(p.Rows, records[code])
	}
	p.ValidCount = len(p.Rows)
	return p
}

func removeCode(order []string, code string) []string {
	for i, c := range order {
		if c == code {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// Ceilings returns the rows ready to be upserted.
func (p *Preview) Ceilings() []catalog.Ceiling {
	out := make([]catalog.Ceiling, 0, len(p.Rows))
	for _, r := range p.Rows {
		if r.Code == "" || !r.Value.Valid {
			continue
		}
		out = append(out, catalog.Ceiling{
			Code:        r.Code,
			Description: r.Description,
			Total:       r.Value.Decimal,
		})
	}
	return out
}

// total is used in import logs.
func (p *Preview) total() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range p.Rows {
		sum = sum.Add(money.OrZero(r.Value.NullDecimal))
	}
	return sum
}
