package cbhpm

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
)

// Rule names recorded in the applied-rules audit list.
const (
	RuleMultiplier            = "multiplicador"
	RuleAssistantPercentages  = "percentuais"
	RuleSimultaneousReduction = "reducoes_simultaneos"
)

var one = decimal.NewFromInt(1)

// TierResolver resolves porte values the item does not carry itself.
type TierResolver interface {
	Resolve(ctx context.Context, kind catalog.TableType, operatorID int64, uf, hint, code string) catalog.Resolution
}

// Options are the caller-level settings shared by every item of a simulation.
type Options struct {
	PorteHint           string
	AnesthesiaHint      string
	PorteAdjustPct      decimal.Decimal
	AnesthesiaAdjustPct decimal.Decimal
}

// AppliedRule records one rule that changed a value.
type AppliedRule struct {
	Component   string `json:"component"`
	Rule        string `json:"rule"`
	Factor      string `json:"fator,omitempty"`
	Quantity    int    `json:"quantidade,omitempty"`
	Rank        int    `json:"ordem,omitempty"`
	ReducedFrom string `json:"reduzido_de,omitempty"`
	ReducedTo   string `json:"reduzido_para,omitempty"`
}

// AssistantSlot is the fee of one assistant surgeon. Percent is set only
// when the fee was derived from the rule set.
type AssistantSlot struct {
	Index   int          `json:"indice"`
	Percent *string      `json:"percentual_pct"`
	Value   money.Amount `json:"valor"`
}

// Breakdown holds the five sub-totals of one item and their sum.
type Breakdown struct {
	Porte      decimal.NullDecimal
	Film       decimal.NullDecimal
	UCO        decimal.NullDecimal
	Anesthesia decimal.NullDecimal
	Assistants decimal.NullDecimal
	Total      decimal.NullDecimal

	AssistantDetail []AssistantSlot
	AppliedRules    []AppliedRule
}

// sum recomputes the grand total from the sub-totals.
func (b *Breakdown) sum() decimal.NullDecimal {
	return money.Sum(b.Porte, b.Film, b.UCO, b.Anesthesia, b.Assistants)
}

func (b *Breakdown) component(c rules.Component) *decimal.NullDecimal {
	switch c {
	case rules.ComponentPorte:
		return &b.Porte
	case rules.ComponentFilme:
		return &b.Film
	case rules.ComponentUCO:
		return &b.UCO
	case rules.ComponentPorteAn:
		return &b.Anesthesia
	}
	return nil
}

// Calculator computes item breakdowns.
type Calculator struct {
	resolver TierResolver
}

// NewCalculator creates a Calculator that resolves missing porte values
// through resolver.
func NewCalculator(resolver TierResolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Breakdown prices one item against the reference table.
//
// Each sub-total follows a "stored value, else derived, else null" chain.
// The rule set then derives assistant fees and applies the component
// multipliers; the grand total is the null-safe sum of the five parts.
func (c *Calculator) Breakdown(ctx context.Context, in Input, table catalog.PriceTable, opts Options, rs rules.RuleSet) Breakdown {
	var b Breakdown

	basePorte := c.porte(ctx, in, table, opts)
	b.Porte = adjust(basePorte, opts.PorteAdjustPct)
	b.Film = film(in)
	b.UCO = uco(in, table)
	b.Anesthesia = c.anesthesia(ctx, in, table, opts)
	b.Assistants = in.TotalAssistants
	if !b.Assistants.Valid {
		b.Assistants = money.Sum(in.AssistantTotals[:]...)
	}

	detailSet := false
	if b.Porte.Valid {
		detailSet = applyAssistantRules(&b, in, basePorte.Decimal, rs)
	}
	if !detailSet {
		b.AssistantDetail = storedAssistantDetail(in)
	}

	for _, comp := range rules.MultiplierComponents {
		factor, ok := rs.Multiplier(comp)
		if !ok {
			continue
		}
		target := b.component(comp)
		if !target.Valid {
			continue
		}
		next := target.Decimal.Mul(factor)
		if next.Equal(target.Decimal) {
			continue
		}
		target.Decimal = next
		b.AppliedRules = append(b.AppliedRules, AppliedRule{
			Component: string(comp),
			Rule:      RuleMultiplier,
			Factor:    factor.String(),
		})
	}

	b.Total = b.sum()
	return b
}

// porte returns the porte sub-total before the adjustment percentage.
func (c *Calculator) porte(ctx context.Context, in Input, table catalog.PriceTable, opts Options) decimal.NullDecimal {
	value := in.PorteValue
	if !value.Valid {
		hint := firstNonEmpty(opts.PorteHint, table.Name)
		value = c.resolver.Resolve(ctx, catalog.TablePorte, table.OperatorID, table.UF, hint, in.PorteCode).Value
	}
	if !value.Valid {
		return in.TotalPorte
	}
	return decimal.NewNullDecimal(value.Decimal.Mul(fraction(in)))
}

// fraction returns the porte fraction to apply. Stored fractions below 1
// are raised to 1; only a caller override may reduce the porte.
func fraction(in Input) decimal.Decimal {
	f := in.PorteFraction
	switch {
	case !f.Valid || !f.Decimal.IsPositive():
		return one
	case !in.FractionOverride && f.Decimal.LessThan(one):
		return one
	}
	return f.Decimal
}

func film(in Input) decimal.NullDecimal {
	if in.TotalFilm.Valid {
		return in.TotalFilm
	}
	if !in.FilmValue.Valid {
		return decimal.NullDecimal{}
	}
	incidences := one
	if in.Incidences.Valid && !in.Incidences.Decimal.IsZero() {
		incidences = in.Incidences.Decimal
	}
	return decimal.NewNullDecimal(in.FilmValue.Decimal.Mul(incidences))
}

func uco(in Input, table catalog.PriceTable) decimal.NullDecimal {
	if in.TotalUCO.Valid {
		return in.TotalUCO
	}
	if !in.UCOCount.Valid || !table.UCOValue.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(in.UCOCount.Decimal.Mul(table.UCOValue.Decimal))
}

// anesthesia prefers the stored total (adjusted) over the resolved value.
func (c *Calculator) anesthesia(ctx context.Context, in Input, table catalog.PriceTable, opts Options) decimal.NullDecimal {
	if in.TotalAnesthesia.Valid {
		return adjust(in.TotalAnesthesia, opts.AnesthesiaAdjustPct)
	}
	if in.AnesthesiaValue.Valid {
		return in.AnesthesiaValue
	}
	hint := firstNonEmpty(opts.AnesthesiaHint, table.Name)
	return c.resolver.Resolve(ctx, catalog.TablePorteAnestesico, table.OperatorID, table.UF, hint, in.AnesthesiaPorteCode).Value
}

// adjust applies a percentage adjustment (10 means +10%).
func adjust(v decimal.NullDecimal, pct decimal.Decimal) decimal.NullDecimal {
	if !v.Valid || pct.IsZero() {
		return v
	}
	return decimal.NewNullDecimal(v.Decimal.Mul(one.Add(money.Percent(pct))))
}

// applyAssistantRules derives assistant fees from the rule set when the
// item carries none. It reports whether it settled the assistant detail.
func applyAssistantRules(b *Breakdown, in Input, basePorte decimal.Decimal, rs rules.RuleSet) bool {
	current := b.Assistants
	noneDeclared := in.explicitlyNoAssistants()

	if (!current.Valid || current.Decimal.IsZero()) && len(rs.AssistantPercentages) > 0 && !noneDeclared {
		count := assistantSlots(in, rs)
		computed := decimal.Zero
		var slots []AssistantSlot
		for i := 0; i < count; i++ {
			pct := rs.AssistantPercentage(i)
			if !pct.IsPositive() {
				continue
			}
			fee := basePorte.Mul(pct)
			computed = computed.Add(fee)
			display := pct.Mul(hundred).String()
			slots = append(slots, AssistantSlot{Index: i + 1, Percent: &display, Value: money.AmountOf(fee)})
		}
		if !computed.IsPositive() {
			return false
		}
		b.Assistants = decimal.NewNullDecimal(computed)
		b.AssistantDetail = slots
		b.AppliedRules = append(b.AppliedRules, AppliedRule{
			Component: string(rules.ComponentAuxiliares),
			Rule:      RuleAssistantPercentages,
			Quantity:  count,
		})
		return true
	}

	if noneDeclared {
		b.Assistants = decimal.NewNullDecimal(decimal.Zero)
		b.AssistantDetail = []AssistantSlot{}
		return true
	}
	return false
}

// assistantSlots returns how many assistant fees to derive: the declared
// count capped by max_por_porte, else the cap, else one per percentage.
func assistantSlots(in Input, rs rules.RuleSet) int {
	limit, capped := rs.MaxAssistantsFor(in.PorteCode)

	var n int
	switch {
	case in.AssistantCount == nil && capped:
		n = limit
	case in.AssistantCount == nil:
		n = len(rs.AssistantPercentages)
	case capped:
		n = min(*in.AssistantCount, limit)
	default:
		n = *in.AssistantCount
	}
	return max(n, 0)
}

func storedAssistantDetail(in Input) []AssistantSlot {
	var slots []AssistantSlot
	for i, v := range in.AssistantTotals {
		if !v.Valid || v.Decimal.IsZero() {
			continue
		}
		slots = append(slots, AssistantSlot{Index: i + 1, Value: money.NewAmount(v)})
	}
	return slots
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
