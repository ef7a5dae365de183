package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SafeGo runs fn with panic recovery, logging, and automatic restart with
// exponential backoff. If fn panics or returns, it is restarted after an
// increasing delay (1s → 2s → 4s … capped at 30s). The loop exits only when
// ctx is cancelled.
func SafeGo(ctx context.Context, logger *zap.Logger, name string, fn func()) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("background goroutine panicked, restarting",
						zap.String("goroutine", name),
						zap.Any("panic", r),
						zap.Duration("backoff", backoff),
					)
				}
			}()
			fn()
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			logger.Info("restarting background goroutine",
				zap.String("goroutine", name),
			)
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
