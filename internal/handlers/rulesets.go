package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/database"
	"github.com/Rafael-Renck/sistema-preco/internal/models"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
)

// RuleSetRepository stores rule sets.
type RuleSetRepository interface {
	List(ctx context.Context) ([]rules.Record, error)
	Get(ctx context.Context, id int64) (*rules.Record, error)
	Create(ctx context.Context, req models.RuleSetRequest) (*rules.Record, error)
	Update(ctx context.Context, id int64, req models.RuleSetRequest) (*rules.Record, error)
	Activate(ctx context.Context, id int64) (*rules.Record, error)
}

// ActiveRules resolves and caches the rule set in force.
type ActiveRules interface {
	Active(ctx context.Context) (rules.RuleSet, rules.Meta)
	Invalidate(ctx context.Context)
}

// RuleSetHandler manages the CBHPM rule sets (admin only).
type RuleSetHandler struct {
	repo   RuleSetRepository
	active ActiveRules
	logger *zap.Logger
}

func NewRuleSetHandler(repo RuleSetRepository, active ActiveRules, logger *zap.Logger) *RuleSetHandler {
	return &RuleSetHandler{repo: repo, active: active, logger: logger}
}

// ── Reads ──────────────────────────────────────────────────────

// List handles GET /api/admin/cbhpm/regras
func (h *RuleSetHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.repo.List(ctx)
	if err != nil {
		h.logger.Error("failed to list rule sets", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to fetch rule sets")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": list,
	})
}

// Default handles GET /api/admin/cbhpm/regras/padrao
func (h *RuleSetHandler) Default(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"data": rules.DefaultDocument(),
	})
}

// Active handles GET /api/admin/cbhpm/regras/ativa
// It reports the rule set simulations currently run with and its document.
func (h *RuleSetHandler) Active(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, meta := h.active.Active(ctx)

	doc := rules.DefaultDocument()
	if meta.ID != nil {
		rec, err := h.repo.Get(ctx, *meta.ID)
		switch {
		case err == nil && rules.Validate(rec.Rules) == nil && len(rec.Rules) > 0:
			doc = rec.Rules
		case err != nil:
			h.logger.Warn("failed to load active rule set document", zap.Int64("id", *meta.ID), zap.Error(err))
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"info":   meta,
			"regras": doc,
		},
	})
}

// ── Writes ─────────────────────────────────────────────────────

func (h *RuleSetHandler) decode(w http.ResponseWriter, r *http.Request) (models.RuleSetRequest, bool) {
	var req models.RuleSetRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		validationFailed(w, errs)
		return req, false
	}
	return req, true
}

// Create handles POST /api/admin/cbhpm/regras
func (h *RuleSetHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.repo.Create(ctx, req)
	if err != nil {
		h.logger.Error("failed to create rule set", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to create rule set")
		return
	}
	h.active.Invalidate(ctx)

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    rec,
		"message": "Rule set created successfully",
	})
}

// Update handles PUT /api/admin/cbhpm/regras/{id}
func (h *RuleSetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.repo.Update(ctx, id, req)
	if errors.Is(err, database.ErrNotFound) {
		JSONError(w, http.StatusNotFound, "Rule set not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update rule set", zap.Int64("id", id), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to update rule set")
		return
	}
	h.active.Invalidate(ctx)

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    rec,
		"message": "Rule set updated successfully",
	})
}

// Activate handles POST /api/admin/cbhpm/regras/{id}/ativar
func (h *RuleSetHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.repo.Activate(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		JSONError(w, http.StatusNotFound, "Rule set not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to activate rule set", zap.Int64("id", id), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to activate rule set")
		return
	}
	h.active.Invalidate(ctx)

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    rec,
		"message": "Rule set activated",
	})
}
