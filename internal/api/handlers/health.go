package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/models"
)

// ServiceName is reported by the health and status endpoints.
const ServiceName = "deploy-orchestrator"

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health and readiness checks
type HealthHandler struct {
	cluster Pinger
	store   Pinger
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cluster, store Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		cluster: cluster,
		store:   store,
		logger:  logger,
	}
}

// HandleHealth handles GET /api/v1/health (liveness probe)
// Always 200 so a control-plane outage does not restart the pod; the body
// says whether the cluster is reachable.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	connected := h.cluster.Ping(r.Context()) == nil
	status := "healthy"
	if !connected {
		status = "unhealthy"
	}
	respondWithJSON(w, http.StatusOK, models.HealthResponse{
		Status:              status,
		Service:             ServiceName,
		Timestamp:           time.Now().UTC(),
		KubernetesConnected: connected,
	})
}

// HandleReady handles GET /api/v1/ready (readiness probe)
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := models.ReadyResponse{Status: "ready", KubernetesAvailable: true, DatabaseAvailable: true}
	if err := h.cluster.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed: control plane unavailable", zap.Error(err))
		resp.KubernetesAvailable = false
	}
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed: database unavailable", zap.Error(err))
		resp.DatabaseAvailable = false
	}

	if !resp.KubernetesAvailable || !resp.DatabaseAvailable {
		resp.Status = "not ready"
		respondWithJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
