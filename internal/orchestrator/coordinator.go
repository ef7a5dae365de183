package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Coordinator shares task ownership and stop requests between orchestrator
// instances. redisclient.Coordinator implements it for multi-replica
// deployments; LocalCoordinator serves a single instance.
type Coordinator interface {
	TTL() time.Duration
	AcquireLease(ctx context.Context, deploymentID string) (bool, error)
	RefreshLease(ctx context.Context, deploymentID string) error
	ReleaseLease(ctx context.Context, deploymentID string) error
	HasLease(ctx context.Context, deploymentID string) (bool, error)
	PublishStop(ctx context.Context, deploymentID string) error
	SubscribeStops(ctx context.Context) (<-chan string, error)
}

// LocalCoordinator keeps leases in memory. Stop requests never need to leave
// the process, so PublishStop is a no-op and the stop channel stays silent.
type LocalCoordinator struct {
	mu     sync.Mutex
	leases map[string]struct{}
}

// NewLocalCoordinator creates an in-process coordinator.
func NewLocalCoordinator() *LocalCoordinator {
	return &LocalCoordinator{leases: make(map[string]struct{})}
}

// TTL is zero: local leases never expire and need no refresh.
func (c *LocalCoordinator) TTL() time.Duration { return 0 }

func (c *LocalCoordinator) AcquireLease(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.leases[id]; ok {
		return false, nil
	}
	c.leases[id] = struct{}{}
	return true, nil
}

func (c *LocalCoordinator) RefreshLease(context.Context, string) error { return nil }

func (c *LocalCoordinator) ReleaseLease(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.leases, id)
	c.mu.Unlock()
	return nil
}

func (c *LocalCoordinator) HasLease(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.leases[id]
	return ok, nil
}

func (c *LocalCoordinator) PublishStop(context.Context, string) error { return nil }

func (c *LocalCoordinator) SubscribeStops(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}
