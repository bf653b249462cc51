// Package catalog describes the imported price tables the pricing engine
// reads from, and resolves porte values through them.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// TableType identifies what kind of rows a PriceTable holds.
type TableType string

const (
	TableCBHPM            TableType = "cbhpm"
	TablePorte            TableType = "porte"
	TablePorteAnestesico  TableType = "porte_anestesico"
	TableDiariasTaxasPac  TableType = "diarias_taxas_pacotes"
	TableGenericProcedure TableType = "generico"
)

// Valid reports whether t is a known table type.
func (t TableType) Valid() bool {
	switch t {
	case TableCBHPM, TablePorte, TablePorteAnestesico, TableDiariasTaxasPac, TableGenericProcedure:
		return true
	}
	return false
}

// MaxAssistantSlots is the number of per-assistant totals an item can carry.
const MaxAssistantSlots = 4

// PriceTable is a versioned container of imported prices.
type PriceTable struct {
	ID            int64               `json:"id"`
	Name          string              `json:"nome"`
	OperatorID    int64               `json:"id_operadora"`
	UF            string              `json:"uf"`
	Type          TableType           `json:"tipo_tabela"`
	EffectiveDate *time.Time          `json:"data_vigencia"`
	UCOValue      decimal.NullDecimal `json:"uco_valor"`
	Provider      string              `json:"prestador"`
}

// ProcedureItem is one imported CBHPM row. Every numeric field is nullable:
// import files routinely leave columns blank.
type ProcedureItem struct {
	ID          int64
	TableID     int64
	Code        string
	Description string
	UF          string

	PorteCode     string
	PorteFraction decimal.NullDecimal
	PorteValue    decimal.NullDecimal
	TotalPorte    decimal.NullDecimal

	FilmValue  decimal.NullDecimal
	Incidences decimal.NullDecimal
	TotalFilm  decimal.NullDecimal

	UCOCount decimal.NullDecimal
	TotalUCO decimal.NullDecimal

	AnesthesiaPorteCode  string
	AnesthesiaPorteValue decimal.NullDecimal
	TotalAnesthesia      decimal.NullDecimal

	AssistantCount  *int
	TotalAssistants decimal.NullDecimal
	AssistantTotals [MaxAssistantSlots]decimal.NullDecimal

	Subtotal decimal.NullDecimal
}

// Ceiling is the maximum total allowed for a procedure code.
type Ceiling struct {
	Code        string          `json:"codigo"`
	Description string          `json:"descricao"`
	Total       decimal.Decimal `json:"valor_total"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PriceRow is a flat-priced row of a generic or diárias/taxas/pacotes
// table. Provider is empty for package tables.
type PriceRow struct {
	ID          int64
	TableID     int64
	Code        string
	Description string
	Value       decimal.NullDecimal
	Provider    string
	UF          string
}

// PackageItem is a flat-priced row from a diárias/taxas/pacotes table.
type PackageItem struct {
	Code        string       `json:"codigo"`
	Description string       `json:"descricao"`
	Value       money.Amount `json:"valor"`
	TableName   string       `json:"tabela_nome,omitempty"`
	UF          string       `json:"uf,omitempty"`
}

// PackageQuery searches the rows of one package table. Query matches the
// code exactly, as a prefix, or as a substring of the description.
type PackageQuery struct {
	TableName string
	Query     string
	UF        string
	Limit     int
}

// DefaultPackageLimit caps package searches.
const DefaultPackageLimit = 200

// ProcedureQuery selects a procedure item. Code matches exactly or as a
// prefix. An empty TableName restricts the search to cbhpm tables.
type ProcedureQuery struct {
	Code      string
	TableName string
	UF        string
}

// TableQuery selects the newest table of a kind for an operator.
type TableQuery struct {
	Type         TableType
	OperatorID   int64
	UF           string
	NameContains string
}

// TableSource is what the Resolver needs from storage.
type TableSource interface {
	// LatestTable returns the table matching q with the most recent
	// effective date (tables without a date last), or nil when none match.
	LatestTable(ctx context.Context, q TableQuery) (*PriceTable, error)

	// TierValue returns the value of a porte code inside a porte or
	// porte_anestesico table.
	TierValue(ctx context.Context, tableID int64, kind TableType, code string) (decimal.NullDecimal, error)
}

// CodeOnly keeps the code part of a "CODE - description" entry.
func CodeOnly(raw string) string {
	code, _, _ := strings.Cut(raw, " - ")
	return strings.TrimSpace(code)
}

// NormalizeCode trims and uppercases a procedure code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListValue is the single figure used to compare an item across versions:
// the first non-zero value in subtotal, porte, UCO, film order, else the
// film value as stored.
func (p *ProcedureItem) ListValue() decimal.NullDecimal {
	for _, v := range []decimal.NullDecimal{
		p.Subtotal, p.TotalPorte, p.PorteValue, p.TotalUCO, p.UCOCount, p.TotalFilm,
	} {
		if v.Valid && !v.Decimal.IsZero() {
			return v
		}
	}
	return p.FilmValue
}
