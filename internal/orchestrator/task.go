package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/k8s"
	"deploy-orchestrator-go/internal/models"
)

// finalWriteTimeout bounds the terminal status write, which must succeed
// even after the task context is cancelled.
const finalWriteTimeout = 10 * time.Second

// run drives one deployment: generate, persist, apply, wait for readiness and
// record the result. Every failure ends in the record, never in the caller.
func (o *Orchestrator) run(ctx context.Context, id string, req models.DeploymentRequest) {
	logger := o.logger.With(zap.String("deployment_id", id))
	start := o.now()

	release := o.holdLease(ctx, id, logger)
	defer release()

	namespace := req.Namespace()
	set, err := o.generator.Generate(&req, id)
	if err != nil {
		o.finishFailed(ctx, id, err)
		return
	}
	if err := o.store.SaveManifests(ctx, id, set); err != nil {
		o.finishFailed(ctx, id, err)
		return
	}

	if _, err := o.store.Update(ctx, id, domain.PatchStatus(domain.StatusDeploying).WithStarted(o.now())); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Info("deployment stopped before it started")
			middleware.DeploymentsTotal.WithLabelValues("stopped").Inc()
			return
		}
		o.finishFailed(ctx, id, err)
		return
	}
	logger.Info("applying manifests", zap.String("namespace", namespace), zap.Int("documents", set.Len()))

	outcome, err := o.applier.Apply(ctx, set, namespace)
	if err != nil {
		o.finishFailed(ctx, id, err)
		return
	}
	if applyErr := outcome.Err(); applyErr != nil {
		msg := applyErr.Error()
		if _, err := o.store.Update(ctx, id, domain.Patch{ErrorMessage: &msg}); err != nil {
			logger.Warn("failed to record non-critical apply errors", zap.Error(err))
		}
	}

	var lastReady int32 = -1
	waitStart := time.Now()
	status, err := o.poller.Wait(ctx, req.AppName(), namespace, func(s *k8s.WorkloadStatus) {
		if s.Ready == lastReady {
			return
		}
		lastReady = s.Ready
		if _, err := o.store.Update(ctx, id, domain.Patch{}.WithReplicas(s.Total, s.Ready)); err != nil {
			logger.Debug("failed to record replica progress", zap.Error(err))
		}
	})
	if err != nil {
		result := "timeout"
		if ctx.Err() != nil {
			result = "cancelled"
		}
		middleware.ReadinessWaitSeconds.WithLabelValues(result).Observe(time.Since(waitStart).Seconds())
		o.finishFailed(ctx, id, err)
		return
	}
	middleware.ReadinessWaitSeconds.WithLabelValues("ready").Observe(time.Since(waitStart).Seconds())

	patch := domain.PatchStatus(domain.StatusRunning).
		WithReplicas(status.Total, status.Ready).
		WithCompleted(o.now())
	if _, err := o.store.Update(ctx, id, patch); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Info("deployment stopped while becoming ready")
			middleware.DeploymentsTotal.WithLabelValues("stopped").Inc()
			return
		}
		o.finishFailed(ctx, id, err)
		return
	}

	middleware.DeploymentsTotal.WithLabelValues("running").Inc()
	logger.Info("deployment running",
		zap.Int32("ready", status.Ready),
		zap.Int32("total", status.Total),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
}

// finishFailed moves the record to Failed with err as its message. A task
// cancelled by Stop leaves the record alone; one cancelled by shutdown is
// recorded as interrupted.
func (o *Orchestrator) finishFailed(ctx context.Context, id string, err error) {
	logger := o.logger.With(zap.String("deployment_id", id))

	if ctx.Err() != nil {
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, errStopped):
			logger.Info("deployment task cancelled by stop")
			middleware.DeploymentsTotal.WithLabelValues("stopped").Inc()
			return
		case errors.Is(cause, errShutdown):
			err = errShutdown
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	patch := domain.PatchStatus(domain.StatusFailed).WithError(err.Error()).WithCompleted(o.now())
	if _, uerr := o.store.Update(writeCtx, id, patch); uerr != nil {
		if errors.Is(uerr, domain.ErrInvalidTransition) {
			logger.Info("deployment already terminal, failure not recorded", zap.Error(err))
			return
		}
		logger.Error("failed to record deployment failure", zap.Error(uerr), zap.NamedError("cause", err))
		return
	}

	outcome := "failed"
	if errors.Is(err, errShutdown) {
		outcome = "interrupted"
	}
	middleware.DeploymentsTotal.WithLabelValues(outcome).Inc()
	logger.Warn("deployment failed", zap.Error(err))
}

// holdLease claims the deployment's lease and keeps it fresh until the
// returned release func is called. Coordination problems are logged and never
// block the deployment.
func (o *Orchestrator) holdLease(ctx context.Context, id string, logger *zap.Logger) func() {
	ok, err := o.coord.AcquireLease(ctx, id)
	if err != nil {
		logger.Warn("failed to acquire task lease", zap.Error(err))
		return func() {}
	}
	if !ok {
		logger.Warn("task lease already held elsewhere")
		return func() {}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ttl := o.coord.TTL()
		if ttl <= 0 {
			<-stop
			return
		}
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := o.coord.RefreshLease(ctx, id); err != nil && ctx.Err() == nil {
					logger.Warn("failed to refresh task lease", zap.Error(err))
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-stopped
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
		defer cancel()
		if err := o.coord.ReleaseLease(releaseCtx, id); err != nil {
			logger.Warn("failed to release task lease", zap.Error(err))
		}
	}
}
