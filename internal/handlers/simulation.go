package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/cbhpm"
	"github.com/Rafael-Renck/sistema-preco/internal/ctxkeys"
	"github.com/Rafael-Renck/sistema-preco/internal/history"
)

// Simulator prices a request.
type Simulator interface {
	Simulate(ctx context.Context, req cbhpm.Request) (*cbhpm.Result, error)
}

// HistoryStore remembers each user's recent simulations.
type HistoryStore interface {
	Record(ctx context.Context, user string, e history.Entry) error
	List(ctx context.Context, user string) ([]history.Entry, error)
}

// SimulationHandler serves the CBHPM simulator.
type SimulationHandler struct {
	simulator Simulator
	history   HistoryStore
	logger    *zap.Logger
}

// NewSimulationHandler creates a SimulationHandler. history may be nil, in
// which case nothing is remembered.
func NewSimulationHandler(simulator Simulator, history HistoryStore, logger *zap.Logger) *SimulationHandler {
	return &SimulationHandler{simulator: simulator, history: history, logger: logger}
}

// Simulate handles POST /api/simulacao_cbhpm
// The result is written as is, without a "data" envelope.
func (h *SimulationHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req cbhpm.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.simulator.Simulate(ctx, req)
	if err != nil {
		var verr *cbhpm.ValidationError
		if errors.As(err, &verr) {
			JSONError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.logger.Error("simulation failed", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to simulate")
		return
	}

	h.remember(ctx, ctxkeys.UserIDFrom(r.Context()), req)
	JSON(w, http.StatusOK, res)
}

// remember records the simulation; failures only cost the history entry.
func (h *SimulationHandler) remember(ctx context.Context, user string, req cbhpm.Request) {
	if h.history == nil || user == "" {
		return
	}
	entry, err := history.NewEntry(req, time.Now())
	if err != nil {
		h.logger.Warn("failed to build history entry", zap.Error(err))
		return
	}
	if err := h.history.Record(ctx, user, entry); err != nil {
		h.logger.Warn("failed to record simulation history", zap.String("user", user), zap.Error(err))
	}
}

// History handles GET /api/simulacao_cbhpm/historico
func (h *SimulationHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		JSON(w, http.StatusOK, map[string]interface{}{"data": []history.Entry{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.history.List(ctx, ctxkeys.UserIDFrom(r.Context()))
	if err != nil {
		h.logger.Error("failed to list simulation history", zap.Error(err))
		JSONError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": entries,
	})
}
