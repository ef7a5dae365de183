// Package orchestrator accepts deployment requests and drives each one to a
// terminal status on its own background task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/applier"
	"deploy-orchestrator-go/internal/datastore"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/k8s"
	"deploy-orchestrator-go/internal/manifest"
	"deploy-orchestrator-go/internal/models"
	"deploy-orchestrator-go/internal/readiness"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Cancellation causes, told apart by the task when its context ends.
var (
	errStopped  = errors.New("deployment stopped")
	errShutdown = errors.New("interrupted by shutdown")
)

// Options tune request defaults and readiness polling.
type Options struct {
	Defaults          models.Defaults
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
}

// Orchestrator owns the deployment lifecycle.
type Orchestrator struct {
	store     datastore.Store
	cp        k8s.ControlPlane
	coord     Coordinator
	generator *manifest.Generator
	applier   *applier.Applier
	poller    *readiness.Poller
	opts      Options
	logger    *zap.Logger

	tasks      *registry
	baseCtx    context.Context
	baseCancel context.CancelCauseFunc

	newID func() string
	now   func() time.Time
}

// New creates an orchestrator. A nil coord means a single-instance
// LocalCoordinator.
func New(store datastore.Store, cp k8s.ControlPlane, coord Coordinator, generator *manifest.Generator, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if coord == nil {
		coord = NewLocalCoordinator()
	}
	baseCtx, baseCancel := context.WithCancelCause(context.Background())

	return &Orchestrator{
		store:      store,
		cp:         cp,
		coord:      coord,
		generator:  generator,
		applier:    applier.NewApplier(cp, logger),
		poller:     readiness.NewPoller(cp, opts.ReadinessTimeout, opts.ReadinessInterval, logger),
		opts:       opts,
		logger:     logger,
		tasks:      newRegistry(),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Submit validates and authorizes req, records it as Pending and starts its
// background task. Validation and authorization failures create nothing.
func (o *Orchestrator) Submit(ctx context.Context, caller string, req models.DeploymentRequest) (*models.DeployResponse, error) {
	if o.tasks.isClosed() {
		return nil, domain.ErrShuttingDown
	}

	req = req.WithDefaults(o.opts.Defaults)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Owner != caller {
		return nil, fmt.Errorf("%w: request is for %q", domain.ErrAuthorizationMismatch, req.Owner)
	}

	now := o.now().UTC()
	rec := &domain.Record{
		ID:              o.newID(),
		ProjectID:       req.ProjectID,
		ProjectName:     req.ProjectName,
		Owner:           req.Owner,
		ServiceName:     req.ServiceName,
		DisplayName:     req.DisplayName,
		Description:     req.Description,
		ImageReference:  req.ImageName,
		Namespace:       req.Namespace(),
		Status:          domain.StatusPending,
		ReplicasDesired: req.Replicas,
		ManifestTypes:   manifest.TypeNames(manifest.Types(&req)),
		AccessURL:       o.generator.AccessURL(&req),
		HealthCheck: domain.HealthCheckSummary{
			Enabled:       req.HealthChecksEnabled(),
			LivenessPath:  req.LivenessPath(),
			ReadinessPath: req.ReadinessPath(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record deployment: %w", err)
	}

	o.logger.Info("deployment accepted",
		zap.String("deployment_id", rec.ID),
		zap.String("owner", rec.Owner),
		zap.String("project_id", rec.ProjectID),
		zap.String("service", rec.ServiceName),
		zap.String("namespace", rec.Namespace),
		zap.Strings("manifests", rec.ManifestTypes),
	)

	o.start(rec.ID, req)

	return &models.DeployResponse{
		DeploymentID:       rec.ID,
		ProjectID:          rec.ProjectID,
		ServiceName:        rec.ServiceName,
		Status:             rec.Status,
		ImageName:          rec.ImageReference,
		Namespace:          rec.Namespace,
		CreatedAt:          rec.CreatedAt,
		ManifestsGenerated: rec.ManifestTypes,
		AccessURL:          rec.AccessURL,
	}, nil
}

// start runs the deployment on a goroutine detached from the request.
func (o *Orchestrator) start(id string, req models.DeploymentRequest) {
	ctx, cancel := context.WithCancelCause(o.baseCtx)
	if !o.tasks.add(id, cancel) {
		cancel(errShutdown)
		o.finishFailed(ctx, id, errShutdown)
		return
	}

	middleware.DeploymentsInFlight.Inc()
	go func() {
		defer middleware.DeploymentsInFlight.Dec()
		defer o.tasks.done(id)
		o.run(ctx, id, req)
	}()
}

// Stop marks the deployment Stopped and cancels its task wherever it runs.
// With force the whole namespace is deleted as well.
func (o *Orchestrator) Stop(ctx context.Context, caller, id string, force bool) (*models.StopResponse, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != caller {
		return nil, fmt.Errorf("%w: deployment %s", domain.ErrAuthorizationMismatch, id)
	}

	patch := domain.PatchStatus(domain.StatusStopped)
	if rec.CompletedAt == nil {
		patch = patch.WithCompleted(o.now())
	}
	rec, err = o.store.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("stop deployment: %w", err)
	}

	if o.tasks.cancel(id, errStopped) {
		o.logger.Info("cancelled local deployment task", zap.String("deployment_id", id))
	}
	if err := o.coord.PublishStop(ctx, id); err != nil {
		o.logger.Warn("failed to broadcast stop", zap.String("deployment_id", id), zap.Error(err))
	}

	resp := &models.StopResponse{DeploymentID: id, Status: rec.Status}
	middleware.StopsTotal.WithLabelValues(strconv.FormatBool(force)).Inc()

	if force {
		if err := o.cp.DeleteNamespace(ctx, rec.Namespace); err != nil {
			return resp, fmt.Errorf("delete namespace %s: %w", rec.Namespace, err)
		}
		resp.NamespaceDeleted = true
		o.logger.Info("namespace deleted",
			zap.String("deployment_id", id),
			zap.String("namespace", rec.Namespace),
		)
	}

	return resp, nil
}

// ListenForStops cancels local tasks named on the coordinator's stop channel
// until ctx ends.
func (o *Orchestrator) ListenForStops(ctx context.Context) error {
	stops, err := o.coord.SubscribeStops(ctx)
	if err != nil {
		return err
	}
	for id := range stops {
		if o.tasks.cancel(id, errStopped) {
			o.logger.Info("cancelled deployment task on remote stop", zap.String("deployment_id", id))
		}
	}
	return nil
}

// Get returns the current record.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Record, error) {
	return o.store.Get(ctx, id)
}

// Manifests returns the documents generated for a deployment.
func (o *Orchestrator) Manifests(ctx context.Context, id string) (*manifest.Set, error) {
	return o.store.GetManifests(ctx, id)
}

// List returns one page of a project's deployments. A non-positive limit
// means DefaultListLimit; limits above MaxListLimit are capped.
func (o *Orchestrator) List(ctx context.Context, projectID string, limit, offset int) ([]*domain.Record, int, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, total, err := o.store.ListByProject(ctx, projectID, limit, offset)
	return records, total, limit, err
}

// Stats returns record counts for every status, zeros included, and the total.
func (o *Orchestrator) Stats(ctx context.Context) (map[string]int, int, error) {
	counts, err := o.store.CountByStatus(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string]int, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		out[string(s)] = 0
	}
	total := 0
	for _, c := range counts {
		out[string(c.Status)] = c.Count
		total += c.Count
	}
	return out, total, nil
}

// ActiveTasks returns the number of tasks running on this instance.
func (o *Orchestrator) ActiveTasks() int {
	return o.tasks.len()
}

// TaskAlive reports whether the deployment's task runs here or holds a lease
// on another instance.
func (o *Orchestrator) TaskAlive(ctx context.Context, id string) (bool, error) {
	if o.tasks.has(id) {
		return true, nil
	}
	return o.coord.HasLease(ctx, id)
}

// Shutdown refuses new work, cancels every running task and waits for them
// to record their interruption.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.tasks.close()
	active := o.tasks.len()
	o.baseCancel(errShutdown)

	o.logger.Info("waiting for deployment tasks", zap.Int("active", active))
	if err := o.tasks.wait(ctx); err != nil {
		return fmt.Errorf("deployment tasks did not finish: %w", err)
	}
	return nil
}
