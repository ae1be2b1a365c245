// Package taskqueue serializes work per index and bounds work that must not
// pile up.
package taskqueue

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// TaskQueue runs tasks one at a time in submission order.
// The zero value is ready to use.
type TaskQueue struct {
	mu   sync.Mutex
	tail chan struct{} // closed once the most recently queued task finishes
}

// Run queues fn behind every task submitted before it and waits for its
// result. If ctx ends while waiting, Run returns ctx.Err() and fn never
// runs; tasks queued after it still wait for the ones queued before it.
func (q *TaskQueue) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				close(done)
			}()
			return ctx.Err()
		}
	}

	defer close(done)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Wait blocks until every task queued before the call has finished.
func (q *TaskQueue) Wait(ctx context.Context) error {
	return q.Run(ctx, func(context.Context) error { return nil })
}

// Registry hands out one TaskQueue per name.
type Registry struct {
	queues *xsync.MapOf[string, *TaskQueue]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: xsync.NewMapOf[string, *TaskQueue]()}
}

// Queue returns the queue for name, creating it on first use.
func (r *Registry) Queue(name string) *TaskQueue {
	q, _ := r.queues.LoadOrCompute(name, func() *TaskQueue { return &TaskQueue{} })
	return q
}

// Forget drops the queue for name. Tasks already queued keep running.
func (r *Registry) Forget(name string) {
	r.queues.Delete(name)
}
