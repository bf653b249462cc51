package rules

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefault(t *testing.T) {
	rs := Default()

	if rs.Description != "Regras base CBHPM" {
		t.Errorf("Description = %q", rs.Description)
	}

	wantRed := []string{"1", "0.5", "0.3", "0.2"}
	if len(rs.Reductions) != len(wantRed) {
		t.Fatalf("len(Reductions) = %d; want %d", len(rs.Reductions), len(wantRed))
	}
	for i, w := range wantRed {
		f, ok := rs.ReductionFactor(i)
		if !ok || !f.Equal(dec(w)) {
			t.Errorf("ReductionFactor(%d) = %s, %v; want %s, true", i, f, ok, w)
		}
	}
	if f, _ := rs.ReductionFactor(9); !f.Equal(dec("0.2")) {
		t.Errorf("ReductionFactor(9) = %s; want last factor 0.2", f)
	}

	wantPct := []string{"0.3", "0.2", "0.1", "0.1"}
	for i, w := range wantPct {
		if p := rs.AssistantPercentage(i); !p.Equal(dec(w)) {
			t.Errorf("AssistantPercentage(%d) = %s; want %s", i, p, w)
		}
	}

	wantMax := map[string]int{"0": 0, "1": 0, "2": 1, "3": 2, "4": 2, "5": 3, "6": 3, "default": 2}
	if !reflect.DeepEqual(rs.MaxAssistants, wantMax) {
		t.Errorf("MaxAssistants = %v; want %v", rs.MaxAssistants, wantMax)
	}

	for _, c := range []Component{ComponentUCO, ComponentFilme} {
		if f, ok := rs.Multiplier(c); !ok || !f.Equal(dec("1")) {
			t.Errorf("Multiplier(%s) = %s, %v; want 1, true", c, f, ok)
		}
	}
	if _, ok := rs.Multiplier(ComponentPorte); ok {
		t.Error("Multiplier(porte) should be absent in the defaults")
	}
}

func TestDefaultIsFreshCopy(t *testing.T) {
	a := Default()
	a.MaxAssistants["3"] = 99
	a.AssistantPercentages[0] = dec("0.9")

	b := Default()
	if b.MaxAssistants["3"] != 2 || !b.AssistantPercentages[0].Equal(dec("0.3")) {
		t.Error("Default() shares state between calls")
	}
}

func TestMaxAssistantsFor(t *testing.T) {
	rs := Default()
	tests := []struct {
		porte string
		want  int
	}{
		{"3", 2},
		{" 5 ", 3},
		{"0", 0},
		{"3A", 2},
		{"", 2},
	}
	for _, tt := range tests {
		got, ok := rs.MaxAssistantsFor(tt.porte)
		if !ok || got != tt.want {
			t.Errorf("MaxAssistantsFor(%q) = %d, %v; want %d, true", tt.porte, got, ok, tt.want)
		}
	}

	rs.MaxAssistants = map[string]int{"1": 1}
	if _, ok := rs.MaxAssistantsFor("7"); ok {
		t.Error("MaxAssistantsFor without default entry should report no cap")
	}
}

func TestParseNormalizes(t *testing.T) {
	doc := `{
		"porte": {"multiplicador": 110, "reducoes_simultaneos": [100, "50", "x", -3, 2]},
		"porte_an": {"multiplicador": "abc"},
		"uco": {"multiplicador": -2},
		"filme": {"multiplicador": "1,5"},
		"auxiliares": {"percentuais": [30, "20", null, 0.1], "max_por_porte": {" 3 ": "1", "default": 4, "bad": "?"}}
	}`
	rs, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f, _ := rs.Multiplier(ComponentPorte); !f.Equal(dec("1.1")) {
		t.Errorf("porte multiplier = %s; want 1.1", f)
	}
	if _, ok := rs.Multiplier(ComponentPorteAn); ok {
		t.Error("unparseable porte_an multiplier should be absent")
	}
	if f, _ := rs.Multiplier(ComponentUCO); !f.IsZero() {
		t.Errorf("negative uco multiplier = %s; want 0", f)
	}
	if f, _ := rs.Multiplier(ComponentFilme); !f.Equal(dec("1.5")) {
		t.Errorf("filme multiplier = %s; want 1.5", f)
	}

	wantRed := []struct {
		f  string
		ok bool
	}{{"1", true}, {"0.5", true}, {"0", false}, {"0", true}, {"1", true}}
	for i, w := range wantRed {
		f, ok := rs.ReductionFactor(i)
		if ok != w.ok || (ok && !f.Equal(dec(w.f))) {
			t.Errorf("ReductionFactor(%d) = %s, %v; want %s, %v", i, f, ok, w.f, w.ok)
		}
	}

	wantPct := []string{"0.3", "0.2", "0", "0.1"}
	for i, w := range wantPct {
		if p := rs.AssistantPercentage(i); !p.Equal(dec(w)) {
			t.Errorf("AssistantPercentage(%d) = %s; want %s", i, p, w)
		}
	}

	if rs.MaxAssistants["3"] != 1 || rs.MaxAssistants["default"] != 4 {
		t.Errorf("MaxAssistants = %v", rs.MaxAssistants)
	}
	if _, ok := rs.MaxAssistants["bad"]; ok {
		t.Error("unparseable max_por_porte entry should be dropped")
	}
}

func TestParseEdgeCases(t *testing.T) {
	for _, in := range []string{"", "  ", "{}", "null"} {
		rs, err := Parse([]byte(in))
		if err != nil {
			t.Errorf("Parse(%q) error = %v", in, err)
			continue
		}
		if !reflect.DeepEqual(rs, Default()) {
			t.Errorf("Parse(%q) should yield the default rule set", in)
		}
	}

	for _, in := range []string{"[1,2]", `"x"`, "{broken"} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}

	rs, err := Parse([]byte(`{"porte": "oops", "auxiliares": 3}`))
	if err != nil {
		t.Fatalf("Parse with malformed sections: %v", err)
	}
	if len(rs.Reductions) != 0 || len(rs.AssistantPercentages) != 0 {
		t.Error("malformed sections should be ignored")
	}
}

// ── Store ───────────────────────────────────────────────────────

type fakeSource struct {
	rec   *Record
	err   error
	calls int
}

func (f *fakeSource) CurrentRuleSet(context.Context) (*Record, error) {
	f.calls++
	return f.rec, f.err
}

type memCache struct{ data map[string][]byte }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestStoreFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{"empty store", &fakeSource{}},
		{"backend error", &fakeSource{err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.src, nil, time.Minute, zap.NewNop())
			rs, meta := s.Active(context.Background())
			if !reflect.DeepEqual(rs, Default()) {
				t.Error("expected default rules")
			}
			if meta.Name != DefaultName || meta.ID != nil {
				t.Errorf("meta = %+v; want default name and no id", meta)
			}
		})
	}
}

func TestStoreUsesStoredRules(t *testing.T) {
	v := "2024"
	src := &fakeSource{rec: &Record{
		ID:      7,
		Name:    "Contrato X",
		Version: &v,
		Active:  true,
		Rules:   []byte(`{"porte": {"reducoes_simultaneos": [1, 0.7]}}`),
	}}
	s := NewStore(src, nil, time.Minute, zap.NewNop())

	rs, meta := s.Active(context.Background())
	if f, _ := rs.ReductionFactor(1); !f.Equal(dec("0.7")) {
		t.Errorf("ReductionFactor(1) = %s; want 0.7", f)
	}
	if meta.ID == nil || *meta.ID != 7 || meta.Name != "Contrato X" || *meta.Version != "2024" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestStoreBadDocumentKeepsMeta(t *testing.T) {
	src := &fakeSource{rec: &Record{ID: 3, Name: "quebrado", Rules: []byte(`[1]`)}}
	s := NewStore(src, nil, time.Minute, zap.NewNop())

	rs, meta := s.Active(context.Background())
	if !reflect.DeepEqual(rs, Default()) {
		t.Error("unusable document should fall back to default rules")
	}
	if meta.Name != "quebrado" {
		t.Errorf("meta.Name = %q; want quebrado", meta.Name)
	}
}

func TestStoreIsIdempotentAndCached(t *testing.T) {
	src := &fakeSource{rec: &Record{ID: 1, Name: "A", Rules: []byte(`{"uco": {"multiplicador": 2}}`)}}
	cache := &memCache{data: map[string][]byte{}}
	s := NewStore(src, cache, time.Minute, zap.NewNop())

	first, _ := s.Active(context.Background())
	second, _ := s.Active(context.Background())
	if !reflect.DeepEqual(first, second) {
		t.Error("two reads without writes returned different rules")
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d; want 1 (second read served from cache)", src.calls)
	}

	s.Invalidate(context.Background())
	s.Active(context.Background())
	if src.calls != 2 {
		t.Errorf("source calls after invalidate = %d; want 2", src.calls)
	}
}
