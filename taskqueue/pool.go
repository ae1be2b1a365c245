package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/panjf2000/ants/v2"
)

// Pool is a bounded executor backed by an ants worker pool.
type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used for panics in fire-and-forget tasks.
// Default is slog.Default().
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool running at most size tasks at once.
// A size below 1 defaults to runtime.NumCPU().
func NewPool(size int, opts ...PoolOption) (*Pool, error) {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		p.logger.Error("task panicked", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Do runs fn on a pool worker and waits for its result. Submission blocks
// while the pool is full. If ctx ends first, Do returns ctx.Err() while fn
// keeps running to completion so its own cleanup still happens.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	err := p.pool.Submit(func() {
		defer func() {
			if v := recover(); v != nil {
				result <- fmt.Errorf("task panicked: %v", v)
			}
		}()
		result <- fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go submits fn without waiting for it.
func (p *Pool) Go(fn func()) error {
	return p.pool.Submit(fn)
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool. Tasks already running finish on their own.
func (p *Pool) Release() {
	p.pool.Release()
}
