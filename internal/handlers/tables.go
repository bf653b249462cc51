package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/database"
	"github.com/Rafael-Renck/sistema-preco/internal/models"
)

// TableWriter edits price table settings.
type TableWriter interface {
	SetUCOValue(ctx context.Context, tableID int64, value decimal.NullDecimal) (*catalog.PriceTable, error)
}

// TableHandler edits price table settings (admin only).
type TableHandler struct {
	tables TableWriter
	logger *zap.Logger
}

func NewTableHandler(tables TableWriter, logger *zap.Logger) *TableHandler {
	return &TableHandler{tables: tables, logger: logger}
}

// SetUCO handles PUT /api/admin/tabelas/{id}/uco
func (h *TableHandler) SetUCO(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req models.UCORequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validationFailed(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	table, err := h.tables.SetUCOValue(ctx, id, req.Value.NullDecimal)
	if errors.Is(err, database.ErrNotFound) {
		JSONError(w, http.StatusNotFound, "CBHPM table not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to set uco value", zap.Int64("id", id), zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to update table")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    table,
		"message": "UCO value updated",
	})
}
