package cbhpm

import (
	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
)

// ItemResult is the priced view of one item. In a single-code simulation it
// is the whole result; in a bundle it describes one entry of "itens" and,
// at the top level, the aggregate.
type ItemResult struct {
	Code        string `json:"codigo,omitempty"`
	Description string `json:"descricao,omitempty"`
	Origin      string `json:"origem,omitempty"`

	Porte         money.Amount `json:"total_porte"`
	Film          money.Amount `json:"total_filme"`
	UCO           money.Amount `json:"total_uco"`
	Anesthesia    money.Amount `json:"total_porte_an"`
	Assistants    money.Amount `json:"total_auxiliares"`
	Total         money.Amount `json:"total"`
	TotalOriginal money.Amount `json:"total_original"`
	TotalFinal    money.Amount `json:"total_final"`

	AssistantDetail []AssistantSlot `json:"auxiliares_detalhe,omitempty"`
	AppliedRules    []AppliedRule   `json:"applied_rules,omitempty"`

	ViaEntradaPct    *money.Amount `json:"via_entrada_pct,omitempty"`
	ViaEntradaFactor string        `json:"via_entrada_factor,omitempty"`

	CeilingValue       money.Amount `json:"teto_valor_total"`
	CeilingDescription string       `json:"teto_descricao,omitempty"`
	CeilingExcess      money.Amount `json:"teto_excedente"`
	CeilingExceeded    bool         `json:"teto_excedido"`
	CeilingStatus      string       `json:"teto_status,omitempty"`

	SourceTable string `json:"tabela_origem,omitempty"`
	SourceUF    string `json:"uf_origem,omitempty"`
}

// Result is the outcome of a simulation. Single-code results carry the
// item inline; bundle results carry the aggregate inline and the items in
// Items.
type Result struct {
	ItemResult

	Items []ItemResult `json:"itens,omitempty"`

	PorteTableUsed      *string                 `json:"porte_tabela_usada"`
	AnesthesiaTableUsed *string                 `json:"porte_an_tabela_usada"`
	UCOValue            money.Amount            `json:"uco_valor"`
	BaseVersion         *string                 `json:"versao_base"`
	PorteAdjustPct      money.Amount            `json:"ajuste_porte_pct"`
	AnesthesiaAdjustPct money.Amount            `json:"ajuste_porte_an_pct"`
	ViaEntradaPcts      map[string]money.Amount `json:"via_entrada_pcts"`
	RulesInfo           rules.Meta              `json:"cbhpm_rules_info"`
	CeilingAlerts       []CeilingAlert          `json:"teto_alertas"`

	Bundle bool `json:"-"`
}

// line is the working state of one cbhpm item inside a simulation.
type line struct {
	in Input
	b  Breakdown

	viaPct        decimal.Decimal
	viaFactor     decimal.Decimal
	totalOriginal decimal.NullDecimal
	totalFinal    decimal.NullDecimal

	ceiling CeilingCheck
}

// applyViaEntrada keeps pct percent of the porte (rounded to cents) and
// recomputes the total. The unscaled sum is kept as the original total.
func (l *line) applyViaEntrada(pct decimal.Decimal) {
	l.viaPct = pct
	l.viaFactor = money.Percent(pct)
	l.totalOriginal = l.b.sum()

	if l.b.Porte.Valid {
		l.b.Porte.Decimal = money.Round(l.b.Porte.Decimal.Mul(l.viaFactor))
	}
	l.b.Total = l.b.sum()
	l.totalFinal = l.b.Total
}

// comparableTotal is the value ceilings are checked against.
func (l *line) comparableTotal() decimal.NullDecimal {
	if l.totalFinal.Valid {
		return l.totalFinal
	}
	return l.b.Total
}

func (l *line) result() ItemResult {
	pct := money.AmountOf(l.viaPct)
	return ItemResult{
		Code:             l.in.Code,
		Description:      l.in.Description,
		Origin:           OriginCBHPM,
		Porte:            money.NewAmount(l.b.Porte),
		Film:             money.NewAmount(l.b.Film),
		UCO:              money.NewAmount(l.b.UCO),
		Anesthesia:       money.NewAmount(l.b.Anesthesia),
		Assistants:       money.NewAmount(l.b.Assistants),
		Total:            money.NewAmount(l.b.Total),
		TotalOriginal:    money.NewAmount(l.totalOriginal),
		TotalFinal:       money.NewAmount(l.totalFinal),
		AssistantDetail:  l.b.AssistantDetail,
		AppliedRules:     l.b.AppliedRules,
		ViaEntradaPct:    &pct,
		ViaEntradaFactor: l.viaFactor.String(),

		CeilingValue:       money.NewAmount(l.ceiling.Value),
		CeilingDescription: l.ceiling.Description,
		CeilingExcess:      money.NewAmount(l.ceiling.Excess),
		CeilingExceeded:    l.ceiling.Exceeded,
		CeilingStatus:      l.ceiling.Status,
	}
}

func (l *line) alert() CeilingAlert {
	computed := l.comparableTotal()
	return CeilingAlert{
		Code:               l.in.Code,
		Description:        l.in.Description,
		ComputedTotal:      money.NewAmount(computed),
		CeilingValue:       money.NewAmount(l.ceiling.Value),
		Excess:             money.NewAmount(l.ceiling.Excess),
		CeilingDescription: l.ceiling.Description,
		Message:            ceilingMessage(l.in.Code, computed, l.ceiling),
	}
}

// packageResult renders a flat-priced line: no breakdown, the supplied
// value as every total.
func packageResult(pkg PackageLine) ItemResult {
	zero := money.AmountOf(decimal.Zero)
	value := money.AmountOf(money.OrZero(pkg.Value.NullDecimal))
	full := money.AmountOf(hundred)
	return ItemResult{
		Code:            pkg.Code,
		Description:     pkg.Description,
		Origin:          OriginPackage,
		Porte:           zero,
		Film:            zero,
		UCO:             zero,
		Anesthesia:      zero,
		Assistants:      zero,
		Total:           value,
		TotalOriginal:   value,
		TotalFinal:      value,
		AssistantDetail: []AssistantSlot{},
		ViaEntradaPct:   &full,
		CeilingStatus:   CeilingOK,
		SourceTable:     pkg.TableName,
		SourceUF:        pkg.UF,
	}
}

// bundleSum accumulates the aggregate of a bundle. Null parts count as zero.
type bundleSum struct {
	porte, film, uco, anesthesia, assistants decimal.Decimal
	original, final                          decimal.Decimal
}

func (s *bundleSum) add(r ItemResult) {
	s.porte = s.porte.Add(money.OrZero(r.Porte.NullDecimal))
	s.film = s.film.Add(money.OrZero(r.Film.NullDecimal))
	s.uco = s.uco.Add(money.OrZero(r.UCO.NullDecimal))
	s.anesthesia = s.anesthesia.Add(money.OrZero(r.Anesthesia.NullDecimal))
	s.assistants = s.assistants.Add(money.OrZero(r.Assistants.NullDecimal))
	s.original = s.original.Add(money.OrZero(r.TotalOriginal.NullDecimal))

	final := r.TotalFinal.NullDecimal
	if !final.Valid {
		final = r.Total.NullDecimal
	}
	s.final = s.final.Add(money.OrZero(final))
}

func (s *bundleSum) result() ItemResult {
	return ItemResult{
		Porte:         money.AmountOf(s.porte),
		Film:          money.AmountOf(s.film),
		UCO:           money.AmountOf(s.uco),
		Anesthesia:    money.AmountOf(s.anesthesia),
		Assistants:    money.AmountOf(s.assistants),
		Total:         money.AmountOf(s.final),
		TotalOriginal: money.AmountOf(s.original),
		TotalFinal:    money.AmountOf(s.final),
	}
}
