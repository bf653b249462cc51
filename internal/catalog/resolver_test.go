package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fixture has two porte tables for operator 1: an older one named after
// the hint and a newer generic one.
func fixture() *Memory {
	m := NewMemory()
	m.AddOperator(1)
	hinted := m.AddTable(PriceTable{Name: "Porte Unimed 2020", OperatorID: 1, Type: TablePorte, EffectiveDate: date("2020-01-01")})
	newest := m.AddTable(PriceTable{Name: "Porte Geral 2024", OperatorID: 1, Type: TablePorte, EffectiveDate: date("2024-01-01")})
	undated := m.AddTable(PriceTable{Name: "Porte Sem Data", OperatorID: 1, Type: TablePorte})
	anest := m.AddTable(PriceTable{Name: "Anestesia 2023", OperatorID: 1, Type: TablePorteAnestesico, EffectiveDate: date("2023-06-01")})

	m.SetTier(hinted, TablePorte, "3A", dec("90.00"))
	m.SetTier(newest, TablePorte, "3A", dec("120.00"))
	m.SetTier(newest, TablePorte, "4B", dec("300.00"))
	m.SetTier(undated, TablePorte, "9C", dec("999.00"))
	m.SetTier(anest, TablePorteAnestesico, "3", dec("45.50"))
	return m
}

func TestResolve(t *testing.T) {
	r := NewResolver(fixture(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		kind      TableType
		hint      string
		code      string
		wantValue string
		wantTable string
	}{
		{"hint wins", TablePorte, "unimed", "3A", "90", "Porte Unimed 2020"},
		{"hint miss falls back to newest", TablePorte, "unimed", "4B", "300", "Porte Geral 2024"},
		{"no hint uses newest", TablePorte, "", "3A", "120", "Porte Geral 2024"},
		{"unknown hint uses newest", TablePorte, "bradesco", "3A", "120", "Porte Geral 2024"},
		{"anesthesia", TablePorteAnestesico, "", "3", "45.5", "Anestesia 2023"},
		{"code only in undated table", TablePorte, "", "9C", "", ""},
		{"unknown code", TablePorte, "", "ZZ", "", ""},
		{"empty code", TablePorte, "", "  ", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(ctx, tt.kind, 1, "", tt.hint, tt.code)
			if tt.wantValue == "" {
				if res.Value.Valid || res.TableName != "" {
					t.Fatalf("expected miss, got %v from %q", res.Value, res.TableName)
				}
				return
			}
			if !res.Value.Valid || !res.Value.Decimal.Equal(dec(tt.wantValue)) {
				t.Fatalf("value = %v, want %s", res.Value, tt.wantValue)
			}
			if res.TableName != tt.wantTable {
				t.Fatalf("table = %q, want %q", res.TableName, tt.wantTable)
			}
		})
	}
}

func TestResolveNameMatchesValue(t *testing.T) {
	r := NewResolver(fixture(), zap.NewNop())
	ctx := context.Background()

	for _, hint := range []string{"", "unimed", "geral", "nada"} {
		v := r.PorteValue(ctx, 1, "", hint, "3A")
		name := r.PorteTableName(ctx, 1, "", hint, "3A")
		if v.Valid != (name != "") {
			t.Fatalf("hint %q: value %v and table %q disagree", hint, v, name)
		}
	}

	if got := r.AnesthesiaTableName(ctx, 1, "", "", "3"); got != "Anestesia 2023" {
		t.Fatalf("anesthesia table = %q", got)
	}
	if got := r.AnesthesiaValue(ctx, 1, "", "", "3"); !got.Valid {
		t.Fatal("anesthesia value missing")
	}
}

func TestResolveScopesOperatorAndUF(t *testing.T) {
	m := NewMemory()
	sp := m.AddTable(PriceTable{Name: "Porte SP", OperatorID: 2, UF: "SP", Type: TablePorte})
	rj := m.AddTable(PriceTable{Name: "Porte RJ", OperatorID: 2, UF: "RJ", Type: TablePorte})
	m.SetTier(sp, TablePorte, "1A", dec("10"))
	m.SetTier(rj, TablePorte, "1A", dec("20"))

	r := NewResolver(m, zap.NewNop())
	ctx := context.Background()

	if got := r.Resolve(ctx, TablePorte, 2, "RJ", "", "1A"); got.TableName != "Porte RJ" {
		t.Fatalf("uf RJ resolved to %q", got.TableName)
	}
	if got := r.Resolve(ctx, TablePorte, 3, "", "", "1A"); got.Value.Valid {
		t.Fatalf("other operator resolved to %q", got.TableName)
	}
}

func TestResolveBackendErrorIsMiss(t *testing.T) {
	m := fixture()
	m.FailWith(errors.New("connection reset"))
	r := NewResolver(m, zap.NewNop())

	res := r.Resolve(context.Background(), TablePorte, 1, "", "unimed", "3A")
	if res.Value.Valid || res.TableName != "" {
		t.Fatalf("expected miss on backend error, got %+v", res)
	}
}

func TestSortNewestFirst(t *testing.T) {
	tables := []PriceTable{
		{ID: 1, Name: "undated-old"},
		{ID: 2, Name: "2020", EffectiveDate: date("2020-01-01")},
		{ID: 3, Name: "2024", EffectiveDate: date("2024-01-01")},
		{ID: 4, Name: "undated-new"},
		{ID: 5, Name: "2024-b", EffectiveDate: date("2024-01-01")},
	}
	SortNewestFirst(tables)

	want := []string{"2024-b", "2024", "2020", "undated-new", "undated-old"}
	for i, name := range want {
		if tables[i].Name != name {
			t.Fatalf("position %d = %q, want %q", i, tables[i].Name, name)
		}
	}
}
