package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/manifest"
	"deploy-orchestrator-go/internal/models"
)

// maxRequestBody bounds a deployment request body.
const maxRequestBody = 1 << 20

// Deployments is the orchestrator surface behind the deployment routes.
type Deployments interface {
	Submit(ctx context.Context, caller string, req models.DeploymentRequest) (*models.DeployResponse, error)
	Stop(ctx context.Context, caller, id string, force bool) (*models.StopResponse, error)
	Get(ctx context.Context, id string) (*domain.Record, error)
	Manifests(ctx context.Context, id string) (*manifest.Set, error)
	List(ctx context.Context, projectID string, limit, offset int) ([]*domain.Record, int, int, error)
}

// DeploymentHandler handles the deployment lifecycle routes
type DeploymentHandler struct {
	deployments Deployments
	logger      *zap.Logger
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(deployments Deployments, logger *zap.Logger) *DeploymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeploymentHandler{
		deployments: deployments,
		logger:      logger,
	}
}

// Create handles POST /api/v1/deployments
func (h *DeploymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())

	var req models.DeploymentRequest
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode deployment request", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.deployments.Submit(r.Context(), caller, req)
	if err != nil {
		h.logger.Info("deployment rejected",
			zap.String("caller", caller),
			zap.String("project_id", req.ProjectID),
			zap.String("service", req.ServiceName),
			zap.Error(err),
		)
		respondWithDomainError(w, h.logger, err, "failed to create deployment")
		return
	}

	respondWithJSON(w, http.StatusAccepted, resp)
}

// Get handles GET /api/v1/deployments/{deployment_id}
func (h *DeploymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deployments.Get(r.Context(), chi.URLParam(r, "deployment_id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err, "failed to get deployment")
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewDeploymentStatusResponse(rec))
}

// Manifests handles GET /api/v1/deployments/{deployment_id}/manifests
func (h *DeploymentHandler) Manifests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deployment_id")
	set, err := h.deployments.Manifests(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, h.logger, err, "failed to get manifests")
		return
	}
	respondWithJSON(w, http.StatusOK, models.ManifestsResponse{
		DeploymentID: id,
		Order:        manifest.TypeNames(set.Types()),
		Manifests:    set.Strings(),
	})
}

// Delete handles DELETE /api/v1/deployments/{deployment_id}?force=bool
func (h *DeploymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	id := chi.URLParam(r, "deployment_id")

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	resp, err := h.deployments.Stop(r.Context(), caller, id, force)
	if err != nil {
		if resp != nil {
			// Stopped, but the namespace is still there.
			h.logger.Error("namespace deletion failed",
				zap.String("deployment_id", id),
				zap.Error(err),
			)
			respondWithError(w, http.StatusInternalServerError, "deployment stopped but namespace deletion failed")
			return
		}
		respondWithDomainError(w, h.logger, err, "failed to stop deployment")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// ListByProject handles GET /api/v1/projects/{project_id}/deployments
func (h *DeploymentHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	records, total, limit, err := h.deployments.List(r.Context(), projectID, limit, offset)
	if err != nil {
		respondWithDomainError(w, h.logger, err, "failed to list deployments")
		return
	}

	resp := models.DeploymentListResponse{
		ProjectID:   projectID,
		Deployments: make([]models.DeploymentStatusResponse, 0, len(records)),
		Total:       total,
		Limit:       limit,
		Offset:      max(offset, 0),
	}
	for _, rec := range records {
		resp.Deployments = append(resp.Deployments, models.NewDeploymentStatusResponse(rec))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}
