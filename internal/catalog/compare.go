package catalog

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// CompareMode selects what the columns of a comparison are.
type CompareMode string

const (
	// CompareVersions compares one code across cbhpm table versions.
	CompareVersions CompareMode = "versoes"
	// CompareProviders compares one code across the providers of a table.
	CompareProviders CompareMode = "prestadores"
)

// NoProvider labels rows imported without a provider.
const NoProvider = "-"

// Valid reports whether m is a known mode.
func (m CompareMode) Valid() bool {
	return m == CompareVersions || m == CompareProviders
}

// ObservationQuery selects the prices to compare. TableName is required in
// provider mode and ignored in version mode.
type ObservationQuery struct {
	Mode      CompareMode
	Codes     []string
	Columns   []string
	TableName string
	UF        string
}

// PriceObservation is one price of a code under one column.
type PriceObservation struct {
	Code        string
	Description string
	Column      string
	Value       decimal.NullDecimal
}

// ComparisonRow is one code of the comparison matrix. Values is aligned
// with the column list.
type ComparisonRow struct {
	Code        string         `json:"codigo"`
	Description string         `json:"descricao"`
	Values      []money.Amount `json:"valores"`
	Min         money.Amount   `json:"min"`
	Max         money.Amount   `json:"max"`
	Avg         money.Amount   `json:"avg"`
	Count       int            `json:"count"`
}

// Comparison is the matrix returned to the caller.
type Comparison struct {
	Columns []string        `json:"colunas"`
	Rows    []ComparisonRow `json:"linhas"`
}

// Compare pivots observations into one row per code, ordered by code.
// When columns is empty every column seen is used, sorted. A later
// observation of the same code and column replaces an earlier one.
func Compare(columns []string, obs []PriceObservation) Comparison {
	type entry struct {
		description string
		values      map[string]decimal.NullDecimal
	}

	data := map[string]*entry{}
	seen := map[string]bool{}
	for _, o := range obs {
		e, ok := data[o.Code]
		if !ok {
			e = &entry{description: o.Description, values: map[string]decimal.NullDecimal{}}
			data[o.Code] = e
		}
		e.values[o.Column] = o.Value
		seen[o.Column] = true
	}

	if len(columns) == 0 {
		for c := range seen {
			columns = append(columns, c)
		}
		sort.Strings(columns)
	}

	codes := make([]string, 0, len(data))
	for c := range data {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	out := Comparison{Columns: columns, Rows: make([]ComparisonRow, 0, len(codes))}
	for _, code := range codes {
		e := data[code]
		row := ComparisonRow{Code: code, Description: e.description, Values: make([]money.Amount, len(columns))}

		var sum, lo, hi decimal.Decimal
		for i, col := range columns {
			v := e.values[col]
			row.Values[i] = money.NewAmount(v)
			if !v.Valid {
				continue
			}
			if row.Count == 0 || v.Decimal.LessThan(lo) {
				lo = v.Decimal
			}
			if row.Count == 0 || v.Decimal.GreaterThan(hi) {
				hi = v.Decimal
			}
			sum = sum.Add(v.Decimal)
			row.Count++
		}
		if row.Count > 0 {
			row.Min = money.AmountOf(lo)
			row.Max = money.AmountOf(hi)
			row.Avg = money.AmountOf(money.Round(sum.Div(decimal.NewFromInt(int64(row.Count)))))
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
