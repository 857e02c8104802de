package handler

import (
	"net/http"

	"github.com/gridmesh/csip-core/internal/database"
	"github.com/gridmesh/csip-core/internal/pkg/response"
)

// HealthHandler serves liveness, readiness and metrics endpoints.
type HealthHandler struct {
	db    *database.Postgres
	redis *database.Redis
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *database.Postgres, redis *database.Redis) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /health: process liveness only.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// Ready handles GET /ready: dependency reachability. Redis is advisory
// since the rate limiter fails open without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "redis": "ok"}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(r.Context()); err != nil {
		checks["redis"] = err.Error()
	}
	response.JSON(w, status, checks)
}
