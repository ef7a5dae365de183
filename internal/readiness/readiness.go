// Package readiness waits for a workload to report all replicas ready.
package readiness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/k8s"
)

// Poller polls workload status until it is ready or a deadline passes.
type Poller struct {
	cp       k8s.ControlPlane
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller.
func NewPoller(cp k8s.ControlPlane, timeout, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{cp: cp, timeout: timeout, interval: interval, logger: logger}
}

// Wait blocks until the named workload has every replica ready. observe, if
// non-nil, is called with each status read. Status read errors count as not
// ready. Wait returns the last status seen together with
// domain.ErrReadinessTimeout when the timeout elapses, or ctx.Err() when ctx
// is cancelled first.
func (p *Poller) Wait(ctx context.Context, name, namespace string, observe func(*k8s.WorkloadStatus)) (*k8s.WorkloadStatus, error) {
	var (
		last    *k8s.WorkloadStatus
		lastErr error
		polls   int
	)

	err := wait.PollUntilContextTimeout(ctx, p.interval, p.timeout, true, func(ctx context.Context) (bool, error) {
		polls++
		status, err := p.cp.GetWorkloadStatus(ctx, name, namespace)
		if err != nil {
			lastErr = err
			p.logger.Debug("workload status unavailable",
				zap.String("workload", name),
				zap.String("namespace", namespace),
				zap.Error(err),
			)
			return false, nil
		}

		last = status
		if observe != nil {
			observe(status)
		}
		p.logger.Debug("workload status",
			zap.String("workload", name),
			zap.String("namespace", namespace),
			zap.Int32("ready", status.Ready),
			zap.Int32("total", status.Total),
		)
		return status.IsReady(), nil
	})
	if err == nil {
		return last, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}

	detail := "no status observed"
	if last != nil {
		detail = fmt.Sprintf("%d/%d replicas ready", last.Ready, last.Total)
	} else if lastErr != nil {
		detail = lastErr.Error()
	}
	p.logger.Warn("workload did not become ready",
		zap.String("workload", name),
		zap.String("namespace", namespace),
		zap.Duration("timeout", p.timeout),
		zap.Int("polls", polls),
		zap.String("detail", detail),
	)
	return last, fmt.Errorf("%w after %s: %s", domain.ErrReadinessTimeout, p.timeout, detail)
}
