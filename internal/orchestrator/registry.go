package orchestrator

import (
	"context"
	"sync"
)

// registry tracks the running deployment tasks of this instance.
type registry struct {
	mu     sync.Mutex
	tasks  map[string]context.CancelCauseFunc
	closed bool
	wg     sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{tasks: make(map[string]context.CancelCauseFunc)}
}

// add registers a task. It returns false once the registry is closed.
func (r *registry) add(id string, cancel context.CancelCauseFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.tasks[id] = cancel
	r.wg.Add(1)
	return true
}

// done unregisters a finished task.
func (r *registry) done(id string) {
	r.mu.Lock()
	cancel, ok := r.tasks[id]
	delete(r.tasks, id)
	r.mu.Unlock()
	if ok {
		cancel(nil)
		r.wg.Done()
	}
}

// cancel signals one task and reports whether it was running here.
func (r *registry) cancel(id string, cause error) bool {
	r.mu.Lock()
	cancel, ok := r.tasks[id]
	r.mu.Unlock()
	if ok {
		cancel(cause)
	}
	return ok
}

func (r *registry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// close stops new registrations.
func (r *registry) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// wait blocks until every task is done or ctx ends.
func (r *registry) wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
