package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lease ownership is checked and changed atomically so an instance never
// refreshes or frees a lease another instance took over after expiry.
var (
	refreshLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

	releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// ErrLeaseLost is returned by RefreshLease when the lease expired or is held
// by another instance.
var ErrLeaseLost = errors.New("lease lost")

// Coordinator shares task ownership and stop requests between instances.
type Coordinator struct {
	redis  *redis.Client
	holder string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCoordinator creates a coordinator whose leases are held in the name of
// holder, usually the pod name.
func NewCoordinator(client *Client, holder string, ttl time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		redis:  client.GetRedis(),
		holder: holder,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the lease lifetime.
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// AcquireLease claims the task lease of a deployment. It returns false when
// another instance holds it.
func (c *Coordinator) AcquireLease(ctx context.Context, deploymentID string) (bool, error) {
	ok, err := c.redis.SetNX(ctx, LeaseKey(deploymentID), c.holder, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", deploymentID, err)
	}
	return ok, nil
}

// RefreshLease extends a lease this instance holds.
func (c *Coordinator) RefreshLease(ctx context.Context, deploymentID string) error {
	n, err := refreshLease.Run(ctx, c.redis, []string{LeaseKey(deploymentID)}, c.holder, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease %s: %w", deploymentID, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh lease %s: %w", deploymentID, ErrLeaseLost)
	}
	return nil
}

// ReleaseLease frees a lease this instance holds. Releasing a lease that is
// gone or held elsewhere is not an error.
func (c *Coordinator) ReleaseLease(ctx context.Context, deploymentID string) error {
	if err := releaseLease.Run(ctx, c.redis, []string{LeaseKey(deploymentID)}, c.holder).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", deploymentID, err)
	}
	return nil
}

// HasLease reports whether any instance holds the deployment's lease.
func (c *Coordinator) HasLease(ctx context.Context, deploymentID string) (bool, error) {
	n, err := c.redis.Exists(ctx, LeaseKey(deploymentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check lease %s: %w", deploymentID, err)
	}
	return n > 0, nil
}

// PublishStop asks every instance to cancel the deployment's task.
func (c *Coordinator) PublishStop(ctx context.Context, deploymentID string) error {
	if err := c.redis.Publish(ctx, StopChannel, deploymentID).Err(); err != nil {
		return fmt.Errorf("publish stop %s: %w", deploymentID, err)
	}
	return nil
}

// SubscribeStops delivers deployment ids published with PublishStop until ctx
// is cancelled, then closes the channel. The subscription is active when
// SubscribeStops returns.
func (c *Coordinator) SubscribeStops(ctx context.Context) (<-chan string, error) {
	sub := c.redis.Subscribe(ctx, StopChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", StopChannel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	c.logger.Info("subscribed to stop requests", zap.String("channel", StopChannel))
	return out, nil
}
