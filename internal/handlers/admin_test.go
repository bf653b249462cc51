package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/ceilings"
	"github.com/Rafael-Renck/sistema-preco/internal/database"
	"github.com/Rafael-Renck/sistema-preco/internal/models"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
	"github.com/Rafael-Renck/sistema-preco/internal/storage"
)

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ── Rule sets ──────────────────────────────────────────────────

type fakeRuleRepo struct {
	mu      sync.Mutex
	records []rules.Record
}

func (f *fakeRuleRepo) List(context.Context) ([]rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rules.Record{}, f.records...), nil
}

func (f *fakeRuleRepo) Get(_ context.Context, id int64) (*rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeRuleRepo) Create(_ context.Context, req models.RuleSetRequest) (*rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := rules.Record{
		ID:          int64(len(f.records) + 1),
		Name:        req.Name,
		Version:     req.VersionOrNil(),
		Description: req.DescriptionOrNil(),
		Active:      req.Active,
		Rules:       req.Rules,
	}
	if rec.Active {
		for i := range f.records {
			f.records[i].Active = false
		}
	}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeRuleRepo) Update(_ context.Context, id int64, req models.RuleSetRequest) (*rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Name = req.Name
			f.records[i].Rules = req.Rules
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeRuleRepo) Activate(_ context.Context, id int64) (*rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *rules.Record
	for i := range f.records {
		f.records[i].Active = f.records[i].ID == id
		if f.records[i].Active {
			rec := f.records[i]
			found = &rec
		}
	}
	if found == nil {
		return nil, database.ErrNotFound
	}
	return found, nil
}

type fakeActive struct {
	meta          rules.Meta
	invalidations int
}

func (f *fakeActive) Active(context.Context) (rules.RuleSet, rules.Meta) {
	return rules.Default(), f.meta
}

func (f *fakeActive) Invalidate(context.Context) { f.invalidations++ }

func ruleSetRouter(h *RuleSetHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/regras", h.List)
	r.Get("/regras/padrao", h.Default)
	r.Get("/regras/ativa", h.Active)
	r.Post("/regras", h.Create)
	r.Put("/regras/{id}", h.Update)
	r.Post("/regras/{id}/ativar", h.Activate)
	return r
}

func TestRuleSetWrites(t *testing.T) {
	repo := &fakeRuleRepo{}
	active := &fakeActive{meta: rules.Meta{Name: rules.DefaultName}}
	router := ruleSetRouter(NewRuleSetHandler(repo, active, zap.NewNop()))

	rec := serve(router, http.MethodPost, "/regras", `{"nome":" Regras 2024 ","versao":"","ativo":true,"regras":{"porte":{"reducoes_simultaneos":[1,0.5]}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body)
	}
	var created struct {
		Data rules.Record `json:"data"`
	}
	decodeBody(t, rec, &created)
	if created.Data.Name != "Regras 2024" || created.Data.Version != nil || !created.Data.Active {
		t.Fatalf("created = %+v", created.Data)
	}

	rec = serve(router, http.MethodPut, "/regras/1", `{"nome":"Regras 2025"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", rec.Code, rec.Body)
	}
	var updated struct {
		Data rules.Record `json:"data"`
	}
	decodeBody(t, rec, &updated)
	if string(updated.Data.Rules) != "{}" {
		t.Fatalf("omitted regras stored as %s", updated.Data.Rules)
	}

	if rec := serve(router, http.MethodPost, "/regras/1/ativar", ""); rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d", rec.Code)
	}
	if active.invalidations != 3 {
		t.Fatalf("invalidations = %d, want 3", active.invalidations)
	}
}

func TestRuleSetWriteErrors(t *testing.T) {
	active := &fakeActive{}
	router := ruleSetRouter(NewRuleSetHandler(&fakeRuleRepo{}, active, zap.NewNop()))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"missing name", http.MethodPost, "/regras", `{"regras":{}}`, http.StatusUnprocessableEntity},
		{"rules not an object", http.MethodPost, "/regras", `{"nome":"x","regras":[1,2]}`, http.StatusUnprocessableEntity},
		{"bad json", http.MethodPost, "/regras", `{"nome":`, http.StatusBadRequest},
		{"bad id", http.MethodPut, "/regras/abc", `{"nome":"x"}`, http.StatusBadRequest},
		{"unknown id", http.MethodPut, "/regras/9", `{"nome":"x"}`, http.StatusNotFound},
		{"activate unknown", http.MethodPost, "/regras/9/ativar", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(router, tt.method, tt.target, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
	if active.invalidations != 0 {
		t.Fatalf("failed writes invalidated the cache %d times", active.invalidations)
	}
}

func TestRuleSetActiveDocument(t *testing.T) {
	repo := &fakeRuleRepo{}
	repo.records = []rules.Record{{ID: 4, Name: "Custom", Active: true, Rules: json.RawMessage(`{"auxiliares":{"percentuais":[30]}}`)}}
	id := int64(4)
	active := &fakeActive{meta: rules.Meta{ID: &id, Name: "Custom"}}
	router := ruleSetRouter(NewRuleSetHandler(repo, active, zap.NewNop()))

	var body struct {
		Data struct {
			Info   rules.Meta      `json:"info"`
			Regras json.RawMessage `json:"regras"`
		} `json:"data"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/regras/ativa", ""), &body)
	if body.Data.Info.Name != "Custom" || !strings.Contains(string(body.Data.Regras), `"percentuais":[30]`) {
		t.Fatalf("active = %+v %s", body.Data.Info, body.Data.Regras)
	}

	active.meta = rules.Meta{Name: rules.DefaultName}
	decodeBody(t, serve(router, http.MethodGet, "/regras/ativa", ""), &body)
	if !strings.Contains(string(body.Data.Regras), `"reducoes_simultaneos":[1.0,0.5,0.3,0.2]`) {
		t.Fatalf("fallback document = %s", body.Data.Regras)
	}
}

// ── Ceilings ───────────────────────────────────────────────────

type fakeCeilingRepo struct {
	mu   sync.Mutex
	rows map[string]catalog.Ceiling
	err  error
}

func newFakeCeilingRepo() *fakeCeilingRepo {
	return &fakeCeilingRepo{rows: map[string]catalog.Ceiling{}}
}

func (f *fakeCeilingRepo) List(_ context.Context, q string, page, perPage int) ([]catalog.Ceiling, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	out := []catalog.Ceiling{}
	for _, c := range f.rows {
		if q == "" || strings.Contains(c.Code, q) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (f *fakeCeilingRepo) Upsert(_ context.Context, rows []catalog.Ceiling) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	var inserted, updated int
	for _, c := range rows {
		if _, ok := f.rows[c.Code]; ok {
			updated++
		} else {
			inserted++
		}
		f.rows[c.Code] = c
	}
	return inserted, updated, nil
}

func (f *fakeCeilingRepo) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[code]; !ok {
		return database.ErrNotFound
	}
	delete(f.rows, code)
	return nil
}

func ceilingRouter(t *testing.T, repo *fakeCeilingRepo) http.Handler {
	t.Helper()
	local, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	previews := ceilings.NewPreviewStore(local, time.Hour, zap.NewNop())
	h := NewCeilingHandler(repo, previews, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/tetos", h.List)
	r.Post("/tetos/preview", h.Preview)
	r.Post("/tetos/importar", h.Import)
	r.Delete("/tetos/{codigo}", h.Delete)
	return r
}

func TestCeilingImportFlow(t *testing.T) {
	repo := newFakeCeilingRepo()
	repo.rows["A100"] = catalog.Ceiling{Code: "A100", Description: "Antigo", Total: decimal.NewFromInt(50)}
	router := ceilingRouter(t, repo)

	rec := serve(router, http.MethodPost, "/tetos/preview", `{"linhas":[
		{"codigo":"a100","descricao":"Consulta","valor_total":"120,50"},
		{"codigo":"B200","descricao":"Cirurgia","valor_total":900},
		{"codigo":"","descricao":"Sem codigo","valor_total":1}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d (%s)", rec.Code, rec.Body)
	}
	var preview struct {
		Data ceilings.Preview `json:"data"`
	}
	decodeBody(t, rec, &preview)
	if preview.Data.Token == "" || preview.Data.ValidCount != 2 || len(preview.Data.Errors) != 1 {
		t.Fatalf("preview = %+v", preview.Data)
	}
	if len(repo.rows) != 1 {
		t.Fatal("preview must not write ceilings")
	}

	rec = serve(router, http.MethodPost, "/tetos/importar", `{"token":"`+preview.Data.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d (%s)", rec.Code, rec.Body)
	}
	var result struct {
		Data models.CeilingImportResult `json:"data"`
	}
	decodeBody(t, rec, &result)
	want := models.CeilingImportResult{Total: 2, Inserted: 1, Updated: 1, Errors: 1}
	if result.Data != want {
		t.Fatalf("result = %+v, want %+v", result.Data, want)
	}
	if got := repo.rows["A100"].Total.StringFixed(2); got != "120.50" {
		t.Fatalf("A100 total = %s", got)
	}

	if rec := serve(router, http.MethodPost, "/tetos/importar", `{"token":"`+preview.Data.Token+`"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("reused token status = %d", rec.Code)
	}
}

func TestCeilingImportErrors(t *testing.T) {
	router := ceilingRouter(t, newFakeCeilingRepo())

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"empty preview", "/tetos/preview", `{"linhas":[]}`, http.StatusUnprocessableEntity},
		{"missing token", "/tetos/importar", `{}`, http.StatusUnprocessableEntity},
		{"malformed token", "/tetos/importar", `{"token":"abc"}`, http.StatusNotFound},
		{"unknown token", "/tetos/importar", `{"token":"6f1c2a34-9b1e-4d55-8a62-0c2f4b7e9d10"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(router, http.MethodPost, tt.target, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestCeilingListAndDelete(t *testing.T) {
	repo := newFakeCeilingRepo()
	for i, code := range []string{"A1", "A2", "B1"} {
		repo.rows[code] = catalog.Ceiling{Code: code, Description: code, Total: decimal.NewFromInt(int64(i + 1))}
	}
	router := ceilingRouter(t, repo)

	var page struct {
		Data models.CeilingPage `json:"data"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/tetos?q=A&page=0", ""), &page)
	if page.Data.Total != 2 || page.Data.Page != 1 || page.Data.Pages != 1 || page.Data.PerPage != models.CeilingPerPage {
		t.Fatalf("page = %+v", page.Data)
	}

	if rec := serve(router, http.MethodDelete, "/tetos/b1", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := serve(router, http.MethodDelete, "/tetos/B1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}

	repo.err = errors.New("timeout")
	if rec := serve(router, http.MethodGet, "/tetos", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("list status = %d", rec.Code)
	}
}

// ── Tables ─────────────────────────────────────────────────────

type fakeTables struct {
	tables map[int64]catalog.PriceTable
}

func (f *fakeTables) SetUCOValue(_ context.Context, id int64, value decimal.NullDecimal) (*catalog.PriceTable, error) {
	t, ok := f.tables[id]
	if !ok || t.Type != catalog.TableCBHPM {
		return nil, database.ErrNotFound
	}
	t.UCOValue = value
	f.tables[id] = t
	return &t, nil
}

func TestSetUCO(t *testing.T) {
	tables := &fakeTables{tables: map[int64]catalog.PriceTable{
		1: {ID: 1, Name: "CBHPM 5a Edicao", Type: catalog.TableCBHPM},
		2: {ID: 2, Name: "Porte 2024", Type: catalog.TablePorte},
	}}
	h := NewTableHandler(tables, zap.NewNop())
	r := chi.NewRouter()
	r.Put("/tabelas/{id}/uco", h.SetUCO)

	rec := serve(r, http.MethodPut, "/tabelas/1/uco", `{"uco_valor":"15,25"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
	}
	if got := tables.tables[1].UCOValue.Decimal.StringFixed(2); got != "15.25" {
		t.Fatalf("uco = %s", got)
	}

	if rec := serve(r, http.MethodPut, "/tabelas/1/uco", `{"uco_valor":null}`); rec.Code != http.StatusOK || tables.tables[1].UCOValue.Valid {
		t.Fatalf("clearing uco: status = %d, value = %+v", rec.Code, tables.tables[1].UCOValue)
	}

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"negative", "/tabelas/1/uco", `{"uco_valor":-1}`, http.StatusUnprocessableEntity},
		{"not cbhpm", "/tabelas/2/uco", `{"uco_valor":1}`, http.StatusNotFound},
		{"bad id", "/tabelas/x/uco", `{"uco_valor":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(r, http.MethodPut, tt.target, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ── Health ─────────────────────────────────────────────────────

type fakeDB map[string]string

func (f fakeDB) Health(context.Context) map[string]string { return f }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		db        fakeDB
		cache     Pinger
		want      int
		wantRedis string
	}{
		{"all up", fakeDB{"status": "up"}, fakePinger{}, http.StatusOK, "up"},
		{"redis down", fakeDB{"status": "up"}, fakePinger{errors.New("refused")}, http.StatusOK, "down"},
		{"no redis", fakeDB{"status": "up"}, nil, http.StatusOK, "disabled"},
		{"db down", fakeDB{"status": "down"}, fakePinger{}, http.StatusServiceUnavailable, "up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.db, tt.cache).Check(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			var body struct {
				Redis map[string]string `json:"redis"`
			}
			decodeBody(t, rec, &body)
			if rec.Code != tt.want || body.Redis["status"] != tt.wantRedis {
				t.Fatalf("status = %d, redis = %v", rec.Code, body.Redis)
			}
		})
	}
}
