package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/config"
	"deploy-orchestrator-go/internal/models"
)

// LeaderChecker provides leader election status
type LeaderChecker interface {
	IsLeader() bool
}

// Stats reports deployment counts and local task load.
type Stats interface {
	Stats(ctx context.Context) (map[string]int, int, error)
	ActiveTasks() int
}

// StatusHandler handles status requests
type StatusHandler struct {
	stats   Stats
	cluster Pinger
	config  *config.Config
	leader  LeaderChecker
	logger  *zap.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(stats Stats, cluster Pinger, cfg *config.Config, logger *zap.Logger, leader LeaderChecker) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{
		stats:   stats,
		cluster: cluster,
		config:  cfg,
		leader:  leader,
		logger:  logger,
	}
}

// Handle handles GET /api/v1/status
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, total, err := h.stats.Stats(ctx)
	if err != nil {
		h.logger.Error("status check: cannot count deployments", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to count deployments")
		return
	}

	connected := true
	if err := h.cluster.Ping(ctx); err != nil {
		connected = false
		h.logger.Warn("status check: control plane down", zap.Error(err))
	}

	resp := models.StatusResponse{
		Service:             ServiceName,
		Deployments:         counts,
		Total:               total,
		ActiveTasks:         h.stats.ActiveTasks(),
		KubernetesConnected: connected,
		Timestamp:           time.Now().UTC(),
	}
	if h.leader != nil {
		resp.IsLeader = h.leader.IsLeader()
	}
	if h.config != nil {
		resp.ReadinessTimeout = h.config.ReadinessTimeout.String()
		resp.DefaultHost = h.config.DefaultHost
	}

	respondWithJSON(w, http.StatusOK, resp)
}
