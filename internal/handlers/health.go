package handlers

import (
	"context"
	"net/http"
	"time"
)

// DBHealth reports database status.
type DBHealth interface {
	Health(ctx context.Context) map[string]string
}

// Pinger is implemented by the redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the status of the service dependencies.
type HealthHandler struct {
	db    DBHealth
	cache Pinger
}

// NewHealthHandler creates a HealthHandler. cache may be nil when redis is
// not configured.
func NewHealthHandler(db DBHealth, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check handles GET /api/health
// Redis is optional: when it is down the service still answers with 200.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	db := h.db.Health(ctx)

	redis := map[string]string{"status": "disabled"}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			redis = map[string]string{"status": "down", "error": err.Error()}
		} else {
			redis = map[string]string{"status": "up"}
		}
	}

	status := http.StatusOK
	overall := "up"
	if db["status"] != "up" {
		status = http.StatusServiceUnavailable
		overall = "down"
	}

	JSON(w, status, map[string]interface{}{
		"status":   overall,
		"database": db,
		"redis":    redis,
	})
}
