package catalog

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

type tierKey struct {
	tableID int64
	kind    TableType
	code    string
}

// Memory is an in-memory catalog. It answers every read the pricing engine
// and the browse endpoints make, with the same matching rules as the
// Postgres repository. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	tables    []PriceTable
	items     []ProcedureItem
	rows      []PriceRow
	tiers     map[tierKey]decimal.Decimal
	ceilings  map[string]Ceiling
	operators []int64
	err       error
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		tiers:    map[tierKey]decimal.Decimal{},
		ceilings: map[string]Ceiling{},
	}
}

// FailWith makes every read return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// AddOperator registers an operator id.
func (m *Memory) AddOperator(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.operators, id) {
		m.operators = append(m.operators, id)
	}
}

// AddTable stores t, assigning an id when t.ID is zero, and returns the id.
func (m *Memory) AddTable(t PriceTable) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = int64(len(m.tables) + 1)
	}
	m.tables = append(m.tables, t)
	return t.ID
}

// AddItem stores a cbhpm row.
func (m *Memory) AddItem(item ProcedureItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		item.ID = int64(len(m.items) + 1)
	}
	m.items = append(m.items, item)
}

// AddRow stores a flat-priced row.
func (m *Memory) AddRow(row PriceRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ID == 0 {
		row.ID = int64(len(m.rows) + 1)
	}
	m.rows = append(m.rows, row)
}

// SetTier stores the value of a porte code in a porte or anesthesia table.
func (m *Memory) SetTier(tableID int64, kind TableType, code string, value decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[tierKey{tableID, kind, strings.TrimSpace(code)}] = value
}

// PutCeiling stores c under its uppercased code, replacing any previous one.
func (m *Memory) PutCeiling(c Ceiling) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Code = NormalizeCode(c.Code)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	m.ceilings[c.Code] = c
}

func (m *Memory) table(id int64) *PriceTable {
	for i := range m.tables {
		if m.tables[i].ID == id {
			return &m.tables[i]
		}
	}
	return nil
}

func matchCode(stored, code string) bool {
	return stored == code || strings.HasPrefix(strings.ToUpper(stored), strings.ToUpper(code))
}

func matchUF(uf string, values ...string) bool {
	return uf == "" || slices.Contains(values, uf)
}

// ── Pricing reads ────────────────────────────────────────────────

// FindProcedure returns the first cbhpm row matching q. Exact code matches
// win over prefix matches.
func (m *Memory) FindProcedure(_ context.Context, q ProcedureQuery) (*ProcedureItem, *PriceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, nil, m.err
	}

	code := strings.TrimSpace(q.Code)
	if code == "" {
		return nil, nil, nil
	}

	var prefixItem *ProcedureItem
	var prefixTable *PriceTable
	for i := range m.items {
		item := &m.items[i]
		t := m.table(item.TableID)
		if t == nil || !matchCode(item.Code, code) {
			continue
		}
		if q.TableName != "" && t.Name != q.TableName {
			continue
		}
		if q.TableName == "" && t.Type != TableCBHPM {
			continue
		}
		if !matchUF(q.UF, item.UF, t.UF) {
			continue
		}
		if item.Code == code {
			it, tb := *item, *t
			return &it, &tb, nil
		}
		if prefixItem == nil {
			prefixItem, prefixTable = item, t
		}
	}
	if prefixItem == nil {
		return nil, nil, nil
	}
	it, tb := *prefixItem, *prefixTable
	return &it, &tb, nil
}

// TableByName returns the first table named name, or nil.
func (m *Memory) TableByName(_ context.Context, name string) (*PriceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tables {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, nil
}

// FirstTableOfType returns the table of type t with the lowest id, or nil.
func (m *Memory) FirstTableOfType(_ context.Context, t TableType) (*PriceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var found *PriceTable
	for i := range m.tables {
		if m.tables[i].Type == t && (found == nil || m.tables[i].ID < found.ID) {
			found = &m.tables[i]
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

// DefaultOperatorID returns the lowest registered operator id, or 0.
func (m *Memory) DefaultOperatorID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	if len(m.operators) == 0 {
		return 0, nil
	}
	return slices.Min(m.operators), nil
}

// LatestTable implements TableSource.
func (m *Memory) LatestTable(_ context.Context, q TableQuery) (*PriceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var candidates []PriceTable
	hint := strings.ToLower(q.NameContains)
	for _, t := range m.tables {
		if t.Type != q.Type || t.OperatorID != q.OperatorID {
			continue
		}
		if q.UF != "" && t.UF != q.UF {
			continue
		}
		if hint != "" && !strings.Contains(strings.ToLower(t.Name), hint) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	SortNewestFirst(candidates)
	return &candidates[0], nil
}

// SortNewestFirst orders tables by effective date, newest first, undated
// tables last; ties go to the most recently created table.
func SortNewestFirst(tables []PriceTable) {
	sort.SliceStable(tables, func(i, j int) bool {
		a, b := tables[i].EffectiveDate, tables[j].EffectiveDate
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.After(*b)
		}
		return tables[i].ID > tables[j].ID
	})
}

// TierValue implements TableSource.
func (m *Memory) TierValue(_ context.Context, tableID int64, kind TableType, code string) (decimal.NullDecimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return decimal.NullDecimal{}, m.err
	}
	v, ok := m.tiers[tierKey{tableID, kind, strings.TrimSpace(code)}]
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(v), nil
}

// Ceilings returns the stored ceilings among codes, keyed by uppercased code.
func (m *Memory) Ceilings(_ context.Context, codes []string) (map[string]Ceiling, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]Ceiling, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if entry, ok := m.ceilings[c]; ok {
			out[c] = entry
		}
	}
	return out, nil
}

// ── Browse reads ─────────────────────────────────────────────────

// SearchPackages lists the rows of a package table, ordered by code.
func (m *Memory) SearchPackages(_ context.Context, q PackageQuery) ([]PackageItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var table *PriceTable
	for i := range m.tables {
		if m.tables[i].Name == q.TableName && m.tables[i].Type == TableDiariasTaxasPac {
			table = &m.tables[i]
			break
		}
	}
	if table == nil {
		return []PackageItem{}, nil
	}

	term := strings.ToLower(strings.TrimSpace(q.Query))
	out := []PackageItem{}
	for _, r := range m.rows {
		if r.TableID != table.ID || !matchUF(q.UF, r.UF, table.UF) {
			continue
		}
		if term != "" && !matchCode(r.Code, term) && !strings.Contains(strings.ToLower(r.Description), term) {
			continue
		}
		out = append(out, PackageItem{
			Code:        r.Code,
			Description: r.Description,
			Value:       money.NewAmount(r.Value),
			TableName:   table.Name,
			UF:          r.UF,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPackageLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// VersionsForCode lists the cbhpm tables that carry code, by name.
func (m *Memory) VersionsForCode(_ context.Context, code, uf string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	set := map[string]bool{}
	for _, item := range m.items {
		t := m.table(item.TableID)
		if t == nil || t.Type != TableCBHPM || !matchCode(item.Code, code) || !matchUF(uf, item.UF, t.UF) {
			continue
		}
		set[t.Name] = true
	}
	return sortedKeys(set), nil
}

// ProvidersForCode lists the providers of table that carry code.
func (m *Memory) ProvidersForCode(_ context.Context, tableName, code, uf string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	set := map[string]bool{}
	for _, r := range m.rows {
		t := m.table(r.TableID)
		if t == nil || t.Name != tableName || r.Provider == "" {
			continue
		}
		if !matchCode(r.Code, code) || !matchUF(uf, r.UF, t.UF) {
			continue
		}
		set[r.Provider] = true
	}
	return sortedKeys(set), nil
}

// Observations returns the prices to compare for q.
func (m *Memory) Observations(_ context.Context, q ObservationQuery) ([]PriceObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var out []PriceObservation
	switch q.Mode {
	case CompareVersions:
		for _, item := range m.items {
			t := m.table(item.TableID)
			if t == nil || t.Type != TableCBHPM || !slices.Contains(q.Codes, item.Code) {
				continue
			}
			if len(q.Columns) > 0 && !slices.Contains(q.Columns, t.Name) {
				continue
			}
			if !matchUF(q.UF, item.UF, t.UF) {
				continue
			}
			out = append(out, PriceObservation{
				Code:        item.Code,
				Description: item.Description,
				Column:      t.Name,
				Value:       item.ListValue(),
			})
		}
	case CompareProviders:
		for _, r := range m.rows {
			t := m.table(r.TableID)
			if t == nil || t.Name != q.TableName || !slices.Contains(q.Codes, r.Code) {
				continue
			}
			provider := r.Provider
			if provider == "" {
				provider = NoProvider
			}
			if len(q.Columns) > 0 && !slices.Contains(q.Columns, provider) {
				continue
			}
			if !matchUF(q.UF, r.UF, t.UF) {
				continue
			}
			out = append(out, PriceObservation{
				Code:        r.Code,
				Description: r.Description,
				Column:      provider,
				Value:       r.Value,
			})
		}
	}
	return out, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
