package cbhpm

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// DefaultViaKey is the via_entrada_pcts entry that applies to codes without
// a percentage of their own.
const DefaultViaKey = "__default__"

// ErrMissingInput is wrapped by the ValidationError returned when a request
// names no procedure at all.
var ErrMissingInput = errors.New("cbhpm: no procedure code or package item supplied")

// ValidationError reports a request that cannot be simulated.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// PackageLine is a flat-priced item added to a bundle as is.
type PackageLine struct {
	Code        string       `json:"codigo"`
	Description string       `json:"descricao"`
	Value       money.Amount `json:"valor"`
	TableName   string       `json:"tabela_nome"`
	UF          string       `json:"uf"`
}

// Request is a simulation request. A single Code prices one procedure;
// Codes and/or Packages price a bundle.
type Request struct {
	Code     string        `json:"codigo"`
	Codes    []string      `json:"codigos"`
	Packages []PackageLine `json:"dtp_items"`

	UF              string `json:"uf"`
	Version         string `json:"versao"`
	PorteTable      string `json:"porte_tab"`
	AnesthesiaTable string `json:"porte_an_tab"`

	UCOValue            money.Amount            `json:"uco_valor"`
	FilmValue           money.Amount            `json:"filme_valor"`
	Incidences          money.Amount            `json:"incidencias"`
	PorteAdjustPct      money.Amount            `json:"ajuste_porte_pct"`
	AnesthesiaAdjustPct money.Amount            `json:"ajuste_porte_an_pct"`
	ViaEntradaPcts      map[string]money.Amount `json:"via_entrada_pcts,omitempty"`

	// Manual values for codes that are not in any table.
	Description         string       `json:"descricao,omitempty"`
	PorteCode           string       `json:"porte,omitempty"`
	AnesthesiaPorteCode string       `json:"porte_an,omitempty"`
	PorteFraction       money.Amount `json:"fracao_porte"`
	AssistantCount      money.Amount `json:"numero_auxiliares"`
	PorteValue          money.Amount `json:"valor_porte"`
	AnesthesiaValue     money.Amount `json:"valor_porte_an"`
	UCOCount            money.Amount `json:"uco_qtd"`
	Assistant1Total     money.Amount `json:"total_1_aux"`
	Assistant2Total     money.Amount `json:"total_2_aux"`
	Assistant3Total     money.Amount `json:"total_3_aux"`
	Assistant4Total     money.Amount `json:"total_4_aux"`
}

// prepared is a Request after normalization.
type prepared struct {
	Request

	code     string
	codes    []string
	packages []PackageLine

	uf      string
	version string

	assistantCount *int
	porteAdjust    decimal.Decimal
	anesthAdjust   decimal.Decimal
	via            viaPercentages
}

func (p *prepared) bundle() bool {
	return len(p.codes) > 0 || len(p.packages) > 0
}

// targetCode is the code used to pick the reference table.
func (p *prepared) targetCode() string {
	if p.code != "" {
		return p.code
	}
	if len(p.codes) > 0 {
		return p.codes[0]
	}
	return ""
}

func (p *prepared) assistantTotals() [catalog.MaxAssistantSlots]money.Amount {
	return [catalog.MaxAssistantSlots]money.Amount{
		p.Assistant1Total, p.Assistant2Total, p.Assistant3Total, p.Assistant4Total,
	}
}

// prepare normalizes the request and rejects one that names nothing.
func prepare(req Request) (*prepared, error) {
	p := &prepared{
		Request: req,
		code:    strings.TrimSpace(req.Code),
		uf:      strings.TrimSpace(req.UF),
		version: strings.TrimSpace(req.Version),
		via:     newViaPercentages(req.ViaEntradaPcts),
	}
	p.PorteTable = strings.TrimSpace(req.PorteTable)
	p.AnesthesiaTable = strings.TrimSpace(req.AnesthesiaTable)

	p.packages = dedupePackages(req.Packages)
	inPackages := make(map[string]bool, len(p.packages))
	for _, pkg := range p.packages {
		inPackages[pkg.Code] = true
	}
	for _, c := range normalizeCodes(req.Codes) {
		if !inPackages[c] {
			p.codes = append(p.codes, c)
		}
	}

	if p.code == "" && len(p.codes) == 0 && len(p.packages) == 0 {
		return nil, &ValidationError{
			Field:   "codigo",
			Message: `Informe "codigo" ou a lista "codigos".`,
			Err:     ErrMissingInput,
		}
	}

	if req.AssistantCount.Valid {
		n := int(req.AssistantCount.Decimal.IntPart())
		p.assistantCount = &n
	}
	p.porteAdjust = money.OrZero(req.PorteAdjustPct.NullDecimal)
	p.anesthAdjust = money.OrZero(req.AnesthesiaAdjustPct.NullDecimal)
	return p, nil
}

// normalizeCodes keeps the code part of "CODE - description" entries and
// drops blanks and repeats, preserving order.
func normalizeCodes(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, c := range raw {
		code := catalog.CodeOnly(c)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// dedupePackages keeps one line per code. A repeated code keeps the first
// position and the last values.
func dedupePackages(raw []PackageLine) []PackageLine {
	index := make(map[string]int, len(raw))
	var out []PackageLine
	for _, pkg := range raw {
		pkg.Code = strings.TrimSpace(pkg.Code)
		if pkg.Code == "" {
			continue
		}
		pkg.Description = strings.TrimSpace(pkg.Description)
		pkg.TableName = strings.TrimSpace(pkg.TableName)
		pkg.UF = strings.TrimSpace(pkg.UF)
		if i, ok := index[pkg.Code]; ok {
			out[i] = pkg
			continue
		}
		index[pkg.Code] = len(out)
		out = append(out, pkg)
	}
	return out
}

// ── Via de entrada ───────────────────────────────────────────────

var hundred = decimal.NewFromInt(100)

// viaPercentages maps uppercased codes to the percentage of the porte kept.
type viaPercentages struct {
	byCode   map[string]decimal.Decimal
	fallback decimal.Decimal
}

func newViaPercentages(raw map[string]money.Amount) viaPercentages {
	v := viaPercentages{byCode: map[string]decimal.Decimal{}, fallback: hundred}
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" || !value.Valid {
			continue
		}
		pct := decimal.Min(decimal.Max(value.Decimal, decimal.Zero), hundred)
		if key == DefaultViaKey {
			v.fallback = pct
			continue
		}
		v.byCode[strings.ToUpper(key)] = pct
	}
	return v
}

// For returns the percentage for code.
func (v viaPercentages) For(code string) decimal.Decimal {
	if pct, ok := v.byCode[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return pct
	}
	return v.fallback
}
