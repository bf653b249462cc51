package cbhpm

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
)

// SyntheticTableName names the in-memory reference table used when the
// catalog has no table to price against.
const SyntheticTableName = "SIMULACAO"

// Item origins.
const (
	OriginCBHPM   = "cbhpm"
	OriginPackage = "dtp"
)

// Catalog is the read access the simulator needs to imported tables.
type Catalog interface {
	// FindProcedure returns the first item whose code equals or starts
	// with q.Code, together with its table. Both are nil when none match.
	FindProcedure(ctx context.Context, q catalog.ProcedureQuery) (*catalog.ProcedureItem, *catalog.PriceTable, error)
	TableByName(ctx context.Context, name string) (*catalog.PriceTable, error)
	FirstTableOfType(ctx context.Context, t catalog.TableType) (*catalog.PriceTable, error)
	// DefaultOperatorID returns the first registered operator, or 0.
	DefaultOperatorID(ctx context.Context) (int64, error)
}

// CeilingSource looks up ceilings by uppercased code.
type CeilingSource interface {
	Ceilings(ctx context.Context, codes []string) (map[string]catalog.Ceiling, error)
}

// RuleProvider supplies the rule set in force.
type RuleProvider interface {
	Active(ctx context.Context) (rules.RuleSet, rules.Meta)
}

// Simulator prices single procedures and bundles.
type Simulator struct {
	catalog  Catalog
	ceilings CeilingSource
	resolver TierResolver
	calc     *Calculator
	rules    RuleProvider
	logger   *zap.Logger
}

// NewSimulator wires a Simulator.
func NewSimulator(c Catalog, ceilings CeilingSource, resolver TierResolver, rp RuleProvider, logger *zap.Logger) *Simulator {
	return &Simulator{
		catalog:  c,
		ceilings: ceilings,
		resolver: resolver,
		calc:     NewCalculator(resolver),
		rules:    rp,
		logger:   logger,
	}
}

// Simulate reads the rule set in force once and prices the request with it.
// The only error it returns is a *ValidationError; lookup failures degrade
// to null values.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	rs, meta := s.rules.Active(ctx)
	return s.SimulateWith(ctx, req, rs, meta)
}

// SimulateWith prices the request with an explicit rule set.
func (s *Simulator) SimulateWith(ctx context.Context, req Request, rs rules.RuleSet, meta rules.Meta) (*Result, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}

	ref, refItem := s.referenceTable(ctx, p)
	opts := Options{
		PorteHint:           firstNonEmpty(p.PorteTable, ref.Name),
		AnesthesiaHint:      firstNonEmpty(p.AnesthesiaTable, ref.Name),
		PorteAdjustPct:      p.porteAdjust,
		AnesthesiaAdjustPct: p.anesthAdjust,
	}

	res := &Result{
		UCOValue:            money.NewAmount(ref.UCOValue),
		PorteAdjustPct:      money.AmountOf(p.porteAdjust),
		AnesthesiaAdjustPct: money.AmountOf(p.anesthAdjust),
		ViaEntradaPcts:      map[string]money.Amount{},
		RulesInfo:           meta,
		CeilingAlerts:       []CeilingAlert{},
	}
	if p.version != "" {
		v := p.version
		res.BaseVersion = &v
	}

	if p.bundle() {
		s.simulateBundle(ctx, p, ref, opts, rs, res)
	} else {
		s.simulateSingle(ctx, p, ref, refItem, opts, rs, res)
	}
	return res, nil
}

// referenceTable picks the table that supplies the operator, UF and UCO
// value for the simulation, and the catalog item of the first code.
func (s *Simulator) referenceTable(ctx context.Context, p *prepared) (catalog.PriceTable, *catalog.ProcedureItem) {
	var (
		table *catalog.PriceTable
		item  *catalog.ProcedureItem
		err   error
	)

	if target := p.targetCode(); target != "" {
		item, table, err = s.catalog.FindProcedure(ctx, catalog.ProcedureQuery{Code: target, TableName: p.version, UF: p.uf})
		if err != nil {
			s.logger.Warn("procedure lookup failed", zap.String("code", target), zap.Error(err))
			item, table = nil, nil
		}
	}
	if table == nil && p.version != "" {
		if table, err = s.catalog.TableByName(ctx, p.version); err != nil {
			s.logger.Warn("table lookup failed", zap.String("name", p.version), zap.Error(err))
			table = nil
		}
	}
	if table == nil {
		if table, err = s.catalog.FirstTableOfType(ctx, catalog.TableCBHPM); err != nil {
			s.logger.Warn("cbhpm table lookup failed", zap.Error(err))
			table = nil
		}
	}

	var ref catalog.PriceTable
	if table != nil {
		ref = *table
	} else {
		opID, err := s.catalog.DefaultOperatorID(ctx)
		if err != nil || opID == 0 {
			opID = 1
		}
		ref = catalog.PriceTable{Name: SyntheticTableName, OperatorID: opID, Type: catalog.TableCBHPM}
	}

	if p.UCOValue.Valid {
		ref.UCOValue = p.UCOValue.NullDecimal
	}
	return ref, item
}

// findItem looks up the catalog row for one bundle code.
func (s *Simulator) findItem(ctx context.Context, p *prepared, code string) *catalog.ProcedureItem {
	item, _, err := s.catalog.FindProcedure(ctx, catalog.ProcedureQuery{Code: code, TableName: p.version, UF: p.uf})
	if err != nil {
		s.logger.Warn("procedure lookup failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	return item
}

// ── Single item ──────────────────────────────────────────────────

func (s *Simulator) simulateSingle(ctx context.Context, p *prepared, ref catalog.PriceTable, item *catalog.ProcedureItem, opts Options, rs rules.RuleSet, res *Result) {
	in := buildInput(p.code, item, p, true)
	l := &line{in: in, b: s.calc.Breakdown(ctx, in, ref, opts, rs)}
	l.applyViaEntrada(p.via.For(p.code))
	res.ViaEntradaPcts[strings.ToUpper(p.code)] = money.AmountOf(l.viaPct)

	s.checkCeilings(ctx, []*line{l})
	res.ItemResult = l.result()
	if l.ceiling.Exceeded {
		res.CeilingAlerts = append(res.CeilingAlerts, l.alert())
	}

	res.PorteTableUsed = s.tableUsed(ctx, p.PorteTable, catalog.TablePorte, ref, opts.PorteHint, in.PorteCode)
	res.AnesthesiaTableUsed = s.tableUsed(ctx, p.AnesthesiaTable, catalog.TablePorteAnestesico, ref, opts.AnesthesiaHint, in.AnesthesiaPorteCode)
}

// ── Bundle ───────────────────────────────────────────────────────

func (s *Simulator) simulateBundle(ctx context.Context, p *prepared, ref catalog.PriceTable, opts Options, rs rules.RuleSet, res *Result) {
	res.Bundle = true

	lines := make([]*line, 0, len(p.codes))
	for _, code := range p.codes {
		in := buildInput(code, s.findItem(ctx, p, code), p, false)
		l := &line{in: in, b: s.calc.Breakdown(ctx, in, ref, opts, rs)}
		l.applyViaEntrada(p.via.For(code))
		res.ViaEntradaPcts[strings.ToUpper(code)] = money.AmountOf(l.viaPct)
		lines = append(lines, l)
	}

	applySimultaneousReduction(lines, rs)
	s.checkCeilings(ctx, lines)

	var sum bundleSum
	for _, l := range lines {
		r := l.result()
		res.Items = append(res.Items, r)
		sum.add(r)
		if l.ceiling.Exceeded {
			res.CeilingAlerts = append(res.CeilingAlerts, l.alert())
		}
	}
	for _, pkg := range p.packages {
		r := packageResult(pkg)
		res.Items = append(res.Items, r)
		sum.add(r)
	}

	res.ItemResult = sum.result()
	res.CeilingStatus = CeilingOK
	if len(res.CeilingAlerts) > 0 {
		res.CeilingStatus = CeilingExceeded
	}

	var porteCode, anesthCode string
	for _, l := range lines {
		porteCode = firstNonEmpty(porteCode, l.in.PorteCode)
		anesthCode = firstNonEmpty(anesthCode, l.in.AnesthesiaPorteCode)
	}
	res.PorteTableUsed = s.tableUsed(ctx, p.PorteTable, catalog.TablePorte, ref, opts.PorteHint, porteCode)
	res.AnesthesiaTableUsed = s.tableUsed(ctx, p.AnesthesiaTable, catalog.TablePorteAnestesico, ref, opts.AnesthesiaHint, anesthCode)
}

// applySimultaneousReduction reduces the porte of every item but the most
// expensive one. Items are ranked by descending porte; ties keep request
// order. The delta is taken off the item's total and final total.
func applySimultaneousReduction(lines []*line, rs rules.RuleSet) {
	if len(rs.Reductions) == 0 || len(lines) < 2 {
		return
	}

	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return money.OrZero(lines[b].b.Porte).Cmp(money.OrZero(lines[a].b.Porte))
	})

	for rank, idx := range order {
		l := lines[idx]
		original := money.OrZero(l.b.Porte)
		if !original.IsPositive() {
			continue
		}
		factor, ok := rs.ReductionFactor(rank)
		if !ok {
			continue
		}
		adjusted := original.Mul(factor)
		if adjusted.Equal(original) {
			continue
		}
		delta := original.Sub(adjusted)

		l.b.Porte = decimal.NewNullDecimal(adjusted)
		l.b.Total = decimal.NewNullDecimal(money.OrZero(l.b.Total).Sub(delta))
		l.totalFinal = decimal.NewNullDecimal(money.OrZero(l.totalFinal).Sub(delta))
		l.b.AppliedRules = append(l.b.AppliedRules, AppliedRule{
			Component:   string(rules.ComponentPorte),
			Rule:        RuleSimultaneousReduction,
			Rank:        rank + 1,
			Factor:      factor.String(),
			ReducedFrom: money.Round(original).StringFixed(money.CurrencyPlaces),
			ReducedTo:   money.Round(adjusted).StringFixed(money.CurrencyPlaces),
		})
	}
}

// checkCeilings looks up the ceilings of every line in one batch. A failed
// lookup is logged and leaves every line without a ceiling.
func (s *Simulator) checkCeilings(ctx context.Context, lines []*line) {
	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		if c := catalog.NormalizeCode(l.in.Code); c != "" {
			codes = append(codes, c)
		}
	}

	var found map[string]catalog.Ceiling
	if len(codes) > 0 {
		var err error
		found, err = s.ceilings.Ceilings(ctx, codes)
		if err != nil {
			s.logger.Warn("ceiling lookup failed", zap.Strings("codes", codes), zap.Error(err))
			found = nil
		}
	}

	for _, l := range lines {
		var entry *catalog.Ceiling
		if c, ok := found[catalog.NormalizeCode(l.in.Code)]; ok {
			entry = &c
		}
		l.ceiling = CheckCeiling(entry, l.comparableTotal())
	}
}

func (s *Simulator) tableUsed(ctx context.Context, override string, kind catalog.TableType, ref catalog.PriceTable, hint, code string) *string {
	if override != "" {
		return &override
	}
	name := s.resolver.Resolve(ctx, kind, ref.OperatorID, ref.UF, hint, code).TableName
	if name == "" {
		return nil
	}
	return &name
}
