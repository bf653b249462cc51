package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// CatalogBrowser is what the lookup endpoints read.
type CatalogBrowser interface {
	SearchPackages(ctx context.Context, q catalog.PackageQuery) ([]catalog.PackageItem, error)
	VersionsForCode(ctx context.Context, code, uf string) ([]string, error)
	ProvidersForCode(ctx context.Context, tableName, code, uf string) ([]string, error)
	Observations(ctx context.Context, q catalog.ObservationQuery) ([]catalog.PriceObservation, error)
}

// CatalogHandler serves the price table lookups used by the simulator UI.
type CatalogHandler struct {
	catalog CatalogBrowser
	logger  *zap.Logger
}

func NewCatalogHandler(c CatalogBrowser, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logger}
}

// ── Packages ───────────────────────────────────────────────────

// SearchPackages handles GET /api/simulacao_dtp?tabela_nome=&q=&uf=
// It searches a diárias/taxas/pacotes table and sums the values found.
func (h *CatalogHandler) SearchPackages(w http.ResponseWriter, r *http.Request) {
	tableName := queryParam(r, "tabela_nome")
	if tableName == "" {
		JSON(w, http.StatusOK, map[string]interface{}{"itens": []catalog.PackageItem{}, "total": money.AmountOf(decimal.Zero)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.catalog.SearchPackages(ctx, catalog.PackageQuery{
		TableName: tableName,
		Query:     queryParam(r, "q"),
		UF:        queryParam(r, "uf"),
		Limit:     catalog.DefaultPackageLimit,
	})
	if err != nil {
		h.logger.Error("failed to search packages", zap.String("tabela", tableName), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to search packages")
		return
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(money.OrZero(it.Value.NullDecimal))
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"itens": items,
		"total": money.AmountOf(total),
	})
}

// ── Code lookups ───────────────────────────────────────────────

// Versions handles GET /api/versoes_por_codigo?codigo=&uf=
// The code may come as "CODE - description".
func (h *CatalogHandler) Versions(w http.ResponseWriter, r *http.Request) {
	code := catalog.CodeOnly(queryParam(r, "codigo"))
	if code == "" {
		JSON(w, http.StatusOK, []string{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	versions, err := h.catalog.VersionsForCode(ctx, code, queryParam(r, "uf"))
	if err != nil {
		h.logger.Error("failed to list versions", zap.String("codigo", code), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}
	JSON(w, http.StatusOK, versions)
}

// Providers handles GET /api/prestadores_por_codigo?tabela_nome=&codigo=&uf=
func (h *CatalogHandler) Providers(w http.ResponseWriter, r *http.Request) {
	tableName := queryParam(r, "tabela_nome")
	code := catalog.CodeOnly(queryParam(r, "codigo"))
	if tableName == "" || code == "" {
		JSON(w, http.StatusOK, []string{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	providers, err := h.catalog.ProvidersForCode(ctx, tableName, code, queryParam(r, "uf"))
	if err != nil {
		h.logger.Error("failed to list providers", zap.String("codigo", code), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}
	JSON(w, http.StatusOK, providers)
}

// ── Comparison ─────────────────────────────────────────────────

// Compare handles GET /api/cbhpm/comparar?codigos=&modo=&colunas=&tabela_nome=&uf=
func (h *CatalogHandler) Compare(w http.ResponseWriter, r *http.Request) {
	mode := catalog.CompareMode(queryParam(r, "modo"))
	if mode == "" {
		mode = catalog.CompareVersions
	}
	if !mode.Valid() {
		JSONError(w, http.StatusBadRequest, "modo must be 'versoes' or 'prestadores'")
		return
	}

	var codes []string
	seen := map[string]bool{}
	for _, raw := range splitList(r, "codigos") {
		code := catalog.NormalizeCode(catalog.CodeOnly(raw))
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		JSONError(w, http.StatusBadRequest, "Informe ao menos um codigo")
		return
	}

	q := catalog.ObservationQuery{
		Mode:      mode,
		Codes:     codes,
		Columns:   splitList(r, "colunas"),
		TableName: queryParam(r, "tabela_nome"),
		UF:        queryParam(r, "uf"),
	}
	if mode == catalog.CompareProviders && q.TableName == "" {
		JSONError(w, http.StatusBadRequest, "tabela_nome is required to compare providers")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	obs, err := h.catalog.Observations(ctx, q)
	if err != nil {
		h.logger.Error("failed to load prices to compare", zap.Strings("codigos", codes), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to compare prices")
		return
	}

	cmp := catalog.Compare(q.Columns, obs)
	if cmp.Columns == nil {
		cmp.Columns = []string{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"data": cmp,
	})
}
