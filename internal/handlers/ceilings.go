package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/ceilings"
	"github.com/Rafael-Renck/sistema-preco/internal/database"
	"github.com/Rafael-Renck/sistema-preco/internal/models"
)

// CeilingRepository stores ceilings.
type CeilingRepository interface {
	List(ctx context.Context, q string, page, perPage int) ([]catalog.Ceiling, int, error)
	Upsert(ctx context.Context, rows []catalog.Ceiling) (inserted, updated int, err error)
	Delete(ctx context.Context, code string) error
}

// PreviewStore keeps pending imports.
type PreviewStore interface {
	Save(ctx context.Context, p *ceilings.Preview) (string, error)
	Load(ctx context.Context, token string) (*ceilings.Preview, error)
	Discard(ctx context.Context, token string) error
}

// CeilingHandler manages the per-code ceilings (tetos).
type CeilingHandler struct {
	repo     CeilingRepository
	previews PreviewStore
	logger   *zap.Logger
}

func NewCeilingHandler(repo CeilingRepository, previews PreviewStore, logger *zap.Logger) *CeilingHandler {
	return &CeilingHandler{repo: repo, previews: previews, logger: logger}
}

// List handles GET /api/admin/tetos?q=&page=
func (h *CeilingHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(queryParam(r, "page"))
	if err != nil || page < 1 {
		page = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, total, err := h.repo.List(ctx, queryParam(r, "q"), page, models.CeilingPerPage)
	if err != nil {
		h.logger.Error("failed to list ceilings", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to fetch ceilings")
		return
	}

	pages := 1
	if total > 0 {
		pages = (total + models.CeilingPerPage - 1) / models.CeilingPerPage
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": models.CeilingPage{
			Items:   items,
			Total:   total,
			Page:    page,
			PerPage: models.CeilingPerPage,
			Pages:   pages,
		},
	})
}

// Preview handles POST /api/admin/tetos/preview
// Rows are validated and parked under a token; nothing is written yet.
func (h *CeilingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req models.CeilingPreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validationFailed(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	preview := ceilings.BuildPreview(req.Rows)
	if _, err := h.previews.Save(ctx, &preview); err != nil {
		h.logger.Error("failed to save teto preview", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to save preview")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": preview,
	})
}

// Import handles POST /api/admin/tetos/importar
// It applies a saved preview and discards it.
func (h *CeilingHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req models.CeilingImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validationFailed(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	preview, err := h.previews.Load(ctx, req.Token)
	if errors.Is(err, ceilings.ErrPreviewNotFound) {
		JSONError(w, http.StatusNotFound, "Pré-visualização expirada ou inválida. Envie o arquivo novamente.")
		return
	}
	if err != nil {
		h.logger.Error("failed to load teto preview", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to load preview")
		return
	}

	rows := preview.Ceilings()
	if len(rows) == 0 {
		h.discard(ctx, req.Token)
		JSONError(w, http.StatusUnprocessableEntity, "Pré-visualização vazia. Envie o arquivo novamente.")
		return
	}

	inserted, updated, err := h.repo.Upsert(ctx, rows)
	if err != nil {
		h.logger.Error("failed to import ceilings", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to import ceilings")
		return
	}
	h.discard(ctx, req.Token)

	h.logger.Info("ceilings imported",
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
		zap.Int("errors", len(preview.Errors)),
	)

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": models.CeilingImportResult{
			Total:    len(rows),
			Inserted: inserted,
			Updated:  updated,
			Errors:   len(preview.Errors),
		},
		"message": "Importação concluída",
	})
}

func (h *CeilingHandler) discard(ctx context.Context, token string) {
	if err := h.previews.Discard(ctx, token); err != nil {
		h.logger.Warn("failed to discard teto preview", zap.String("token", token), zap.Error(err))
	}
}

// Delete handles DELETE /api/admin/tetos/{codigo}
func (h *CeilingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := catalog.NormalizeCode(chi.URLParam(r, "codigo"))
	if code == "" {
		JSONError(w, http.StatusBadRequest, "Invalid code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.repo.Delete(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		JSONError(w, http.StatusNotFound, "Ceiling not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete ceiling", zap.String("codigo", code), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to delete ceiling")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Ceiling deleted successfully",
	})
}
