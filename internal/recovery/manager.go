// Package recovery implements the LEADER-ONLY loop that fails deployments
// whose background task disappeared, for example because the replica running
// it crashed.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/config"
	"deploy-orchestrator-go/internal/domain"
)

// Store is the slice of datastore.Store the sweep needs.
type Store interface {
	ListStale(ctx context.Context, statuses []domain.Status, before time.Time) ([]*domain.Record, error)
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Record, error)
}

// TaskChecker reports whether a deployment still has a live task anywhere.
type TaskChecker interface {
	TaskAlive(ctx context.Context, deploymentID string) (bool, error)
}

// inFlight are the statuses only a live task moves a record out of.
var inFlight = []domain.Status{domain.StatusPending, domain.StatusDeploying}

// Manager is the LEADER-ONLY component that recovers orphaned deployments.
type Manager struct {
	k8sClient kubernetes.Interface
	store     Store
	tasks     TaskChecker
	config    *config.Config
	logger    *zap.Logger
	isLeader  atomic.Bool
	now       func() time.Time
}

// NewManager creates a new recovery manager.
func NewManager(k8sClient kubernetes.Interface, store Store, tasks TaskChecker, cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		k8sClient: k8sClient,
		store:     store,
		tasks:     tasks,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// IsLeader returns true if this instance is currently the leader.
func (m *Manager) IsLeader() bool {
	return m.isLeader.Load()
}

// Run starts the manager with leader election.
// This method blocks until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.config.LeaderElectionEnabled {
		m.logger.Info("Leader election disabled, running as leader directly")
		m.setLeader(true)
		defer m.setLeader(false)
		return m.runLeaderWorkload(ctx)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      m.config.LeaderElectionLockName,
			Namespace: m.config.LeaderElectionNamespace,
		},
		Client: m.k8sClient.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: m.config.PodName,
		},
	}

	m.logger.Info("Starting leader election",
		zap.String("lock_name", m.config.LeaderElectionLockName),
		zap.String("namespace", m.config.LeaderElectionNamespace),
		zap.String("pod_name", m.config.PodName),
	)

	// Losing the lease only stops recovery; rejoin the election until shutdown.
	for ctx.Err() == nil {
		leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   m.config.LeaderElectionDuration,
			RenewDeadline:   m.config.LeaderElectionRenewDeadline,
			RetryPeriod:     m.config.LeaderElectionRetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					m.logger.Info("Became leader, starting orphan recovery")
					m.setLeader(true)
					if err := m.runLeaderWorkload(ctx); err != nil && !errors.Is(err, context.Canceled) {
						m.logger.Error("Leader workload failed", zap.Error(err))
					}
				},
				OnStoppedLeading: func() {
					m.logger.Info("Lost leadership, orphan recovery paused")
					m.setLeader(false)
				},
				OnNewLeader: func(identity string) {
					if identity == m.config.PodName {
						return
					}
					m.logger.Info("Leader elected", zap.String("leader", identity))
				},
			},
		})
	}

	return nil
}

func (m *Manager) setLeader(leader bool) {
	m.isLeader.Store(leader)
	if leader {
		middleware.LeaderStatus.Set(1)
	} else {
		middleware.LeaderStatus.Set(0)
	}
}

// runLeaderWorkload sweeps once immediately, then on every RecoveryInterval.
func (m *Manager) runLeaderWorkload(ctx context.Context) error {
	ticker := time.NewTicker(m.config.RecoveryInterval)
	defer ticker.Stop()

	m.logger.Info("Orphan recovery started",
		zap.Duration("interval", m.config.RecoveryInterval),
		zap.Duration("orphan_after", m.config.OrphanAfter),
	)

	for {
		if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("Orphan sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			m.logger.Info("Orphan recovery stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep marks Failed every in-flight record that has not been updated for
// OrphanAfter and whose task is gone. It returns the number recovered.
// Records whose liveness cannot be determined are left for the next sweep.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	cutoff := now.Add(-m.config.OrphanAfter)

	stale, err := m.store.ListStale(ctx, inFlight, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale deployments: %w", err)
	}

	recovered := 0
	for _, rec := range stale {
		alive, err := m.tasks.TaskAlive(ctx, rec.ID)
		if err != nil {
			m.logger.Warn("cannot determine task liveness, skipping",
				zap.String("deployment_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		if alive {
			continue
		}

		msg := fmt.Sprintf("orphaned: task lost while %s, last update %s", rec.Status, rec.UpdatedAt.Format(time.RFC3339))
		patch := domain.PatchStatus(domain.StatusFailed).WithError(msg).WithCompleted(now)
		if _, err := m.store.Update(ctx, rec.ID, patch); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			m.logger.Warn("failed to mark orphan as failed",
				zap.String("deployment_id", rec.ID),
				zap.Error(err),
			)
			continue
		}

		recovered++
		middleware.OrphansRecoveredTotal.Inc()
		m.logger.Warn("recovered orphaned deployment",
			zap.String("deployment_id", rec.ID),
			zap.String("previous_status", string(rec.Status)),
			zap.Time("last_update", rec.UpdatedAt),
		)
	}

	if len(stale) > 0 {
		m.logger.Info("orphan sweep complete",
			zap.Int("stale", len(stale)),
			zap.Int("recovered", recovered),
		)
	}
	return recovered, nil
}
