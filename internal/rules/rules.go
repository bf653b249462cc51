// Package rules defines the CBHPM rule set: the configurable factors that
// drive simultaneous-procedure reductions, assistant-surgeon fees and
// per-component multipliers. Rule sets are stored as loosely typed JSON
// documents; Parse normalizes them once into a RuleSet so the pricing code
// never has to interpret raw JSON.
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// Component names a priced part of a procedure.
type Component string

const (
	ComponentPorte      Component = "porte"
	ComponentFilme      Component = "filme"
	ComponentUCO        Component = "uco"
	ComponentPorteAn    Component = "porte_an"
	ComponentAuxiliares Component = "auxiliares"
)

// MultiplierComponents lists, in application order, the components that
// accept a "multiplicador".
var MultiplierComponents = []Component{ComponentPorte, ComponentFilme, ComponentUCO, ComponentPorteAn}

// DefaultAssistantKey is the max_por_porte entry used when a porte code has
// no entry of its own.
const DefaultAssistantKey = "default"

// ErrNotObject is returned by Parse when the document is not a JSON object.
var ErrNotObject = errors.New("rules: document must be a JSON object")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ── Default rule set ─────────────────────────────────────────────

// defaultDocument mirrors the base CBHPM rules. It is what applies when no
// rule set has been stored.
const defaultDocument = `{
  "descricao": "Regras base CBHPM",
  "porte": {
    "reducoes_simultaneos": [1.0, 0.5, 0.3, 0.2]
  },
  "auxiliares": {
    "percentuais": [0.3, 0.2, 0.1, 0.1],
    "max_por_porte": {"0": 0, "1": 0, "2": 1, "3": 2, "4": 2, "5": 3, "6": 3, "default": 2}
  },
  "uco": {"multiplicador": 1.0},
  "filme": {"multiplicador": 1.0}
}`

// DefaultDocument returns the built-in rule document.
func DefaultDocument() json.RawMessage {
	return json.RawMessage(defaultDocument)
}

// Default returns a fresh copy of the built-in rule set.
func Default() RuleSet {
	rs, err := Parse([]byte(defaultDocument))
	if err != nil {
		panic("rules: invalid built-in document: " + err.Error())
	}
	return rs
}

// ── Typed rule set ───────────────────────────────────────────────

// RuleSet is the normalized form of a rule document.
type RuleSet struct {
	Description string

	// Reductions holds one factor per bundle rank, already normalized into
	// [0, 1]. Entries that could not be parsed are kept as invalid so later
	// ranks keep their position.
	Reductions []decimal.NullDecimal

	// AssistantPercentages holds one fraction per assistant slot. Entries
	// that could not be parsed are zero and never produce a fee.
	AssistantPercentages []decimal.Decimal

	// MaxAssistants maps a trimmed porte code (or DefaultAssistantKey) to
	// the number of assistant slots allowed.
	MaxAssistants map[string]int

	// Multipliers holds the normalized factor per component. Components
	// without a usable factor are absent.
	Multipliers map[Component]decimal.Decimal
}

// ReductionFactor returns the reduction for the item at rank (0-based) in a
// bundle ordered by descending porte. The last factor repeats for ranks
// past the end of the list.
func (r RuleSet) ReductionFactor(rank int) (decimal.Decimal, bool) {
	if len(r.Reductions) == 0 || rank < 0 {
		return decimal.Zero, false
	}
	f := r.Reductions[min(rank, len(r.Reductions)-1)]
	return f.Decimal, f.Valid
}

// AssistantPercentage returns the fraction for the 0-based assistant slot.
// Slots past the end of the list reuse the last percentage.
func (r RuleSet) AssistantPercentage(slot int) decimal.Decimal {
	if len(r.AssistantPercentages) == 0 || slot < 0 {
		return decimal.Zero
	}
	return r.AssistantPercentages[min(slot, len(r.AssistantPercentages)-1)]
}

// MaxAssistantsFor returns the assistant cap for a porte code, falling back
// to the "default" entry.
func (r RuleSet) MaxAssistantsFor(porte string) (int, bool) {
	if n, ok := r.MaxAssistants[strings.TrimSpace(porte)]; ok {
		return n, true
	}
	n, ok := r.MaxAssistants[DefaultAssistantKey]
	return n, ok
}

// Multiplier returns the factor configured for c.
func (r RuleSet) Multiplier(c Component) (decimal.Decimal, bool) {
	f, ok := r.Multipliers[c]
	return f, ok
}

// ── Parsing ──────────────────────────────────────────────────────

type componentSection struct {
	Multiplicador       json.RawMessage   `json:"multiplicador"`
	ReducoesSimultaneos []json.RawMessage `json:"reducoes_simultaneos"`
}

type assistantSection struct {
	Percentuais []json.RawMessage          `json:"percentuais"`
	MaxPorPorte map[string]json.RawMessage `json:"max_por_porte"`
}

// Parse normalizes a stored rule document. An empty object (or empty input)
// yields the default rule set. A section or value that does not have the
// expected shape is skipped; only a document that is not a JSON object at
// all is an error.
func Parse(data []byte) (RuleSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Default(), nil
	}
	if data[0] != '{' {
		return RuleSet{}, ErrNotObject
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return RuleSet{}, err
	}
	if len(doc) == 0 {
		return Default(), nil
	}

	rs := RuleSet{
		MaxAssistants: map[string]int{},
		Multipliers:   map[Component]decimal.Decimal{},
	}
	_ = json.Unmarshal(doc["descricao"], &rs.Description)

	for _, c := range MultiplierComponents {
		var sec componentSection
		if err := json.Unmarshal(doc[string(c)], &sec); err != nil {
			continue
		}
		if f := scalar(sec.Multiplicador); f.Valid {
			rs.Multipliers[c] = normalizeMultiplier(f.Decimal)
		}
		if c == ComponentPorte {
			for _, raw := range sec.ReducoesSimultaneos {
				f := scalar(raw)
				if f.Valid {
					f.Decimal = normalizeReduction(f.Decimal)
				}
				rs.Reductions = append(rs.Reductions, f)
			}
		}
	}

	var aux assistantSection
	if err := json.Unmarshal(doc[string(ComponentAuxiliares)], &aux); err == nil {
		for _, raw := range aux.Percentuais {
			p := money.OrZero(scalar(raw))
			if p.GreaterThan(one) {
				p = p.Div(hundred)
			}
			rs.AssistantPercentages = append(rs.AssistantPercentages, p)
		}
		for key, raw := range aux.MaxPorPorte {
			if n := scalar(raw); n.Valid {
				rs.MaxAssistants[strings.TrimSpace(key)] = int(n.Decimal.IntPart())
			}
		}
	}

	return rs, nil
}

// Validate reports whether data is a usable rule document.
func Validate(data []byte) error {
	_, err := Parse(data)
	return err
}

// scalar reads a JSON number or numeric string. Anything else is null.
func scalar(raw json.RawMessage) decimal.NullDecimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.NullDecimal{}
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.NullDecimal{}
		}
		return money.ParseString(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}

// normalizeMultiplier applies the whole-percent rule and floors at zero.
func normalizeMultiplier(f decimal.Decimal) decimal.Decimal {
	f = money.Factor(f)
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}

// normalizeReduction applies the whole-percent rule and clamps into [0, 1].
func normalizeReduction(f decimal.Decimal) decimal.Decimal {
	f = money.Factor(f)
	if f.GreaterThan(one) {
		return one
	}
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}
