package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/divingclub/clubattrs/internal/infrastructure/metrics"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status   string                `json:"status"`
	Database string                `json:"database"`
	Cache    *metrics.CacheMetrics `json:"cache"`
	Gate     metrics.GateMetrics   `json:"gate"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Cache:    h.collector.GetCacheMetrics(),
		Gate:     h.collector.GetGateMetrics(),
	}

	status := http.StatusOK
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.health.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
