// Package worker runs fire-and-forget background tasks with a bounded
// amount of concurrency. Tasks are best effort: failures are logged, never
// surfaced to the caller.
package worker

import (
	"context"
	"sync"

	"deepvision/internal/logging"
)

// Runner executes named tasks in the background. The zero value is not
// usable; construct with NewRunner.
type Runner struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunner allows up to maxConcurrent tasks at once. maxConcurrent < 1 is
// treated as 1.
func NewRunner(maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{sem: make(chan struct{}, maxConcurrent)}
}

// Submit schedules fn. It never blocks: when the runner is saturated or
// already shut down, the task is dropped with a log line.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logging.Worker("dropping task %s: runner is shut down", name)
		return
	}

	select {
	case r.sem <- struct{}{}:
	default:
		r.mu.Unlock()
		logging.Worker("dropping task %s: runner saturated", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logging.WorkerError("task %s panicked: %v", name, rec)
			}
			<-r.sem
			r.wg.Done()
		}()
		logging.Worker("task %s started", name)
		fn(context.Background())
		logging.Worker("task %s finished", name)
	}()
}

// Wait blocks until all in-flight tasks complete.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting new tasks and waits for in-flight ones.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
