package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
	"github.com/poiesic/quicksearch/taskqueue"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultBatchSize is the number of changes processed per persisted batch.
const DefaultBatchSize = 50

// TemporaryPrefix starts the store name of every temporary view.
const TemporaryPrefix = "temp-"

// Emitter receives the rows a map function produces for one document.
type Emitter func(key string, value core.Value)

// MapFunc produces rows for a document.
type MapFunc func(doc *core.Document, emit Emitter) error

// Definition describes a view. Views sharing a name share persisted state,
// so a name must identify its map function.
type Definition struct {
	Name   string
	Map    MapFunc
	Reduce string
}

func (d Definition) validate(requireName bool) error {
	if requireName && d.Name == "" {
		return ErrViewNameRequired
	}
	if d.Map == nil {
		return ErrMapFunctionRequired
	}
	if _, err := lookupReducer(d.Reduce); err != nil {
		return err
	}
	return nil
}

// View is an opened view bound to its index store.
type View struct {
	def       Definition
	store     storage.IndexStore
	queue     *taskqueue.TaskQueue
	destroyed atomic.Bool
}

// Name returns the view's name.
func (v *View) Name() string { return v.def.Name }

// Destroyed reports whether the view was destroyed. A destroyed view must be
// reopened through the Engine.
func (v *View) Destroyed() bool { return v.destroyed.Load() }

// Engine keeps views incrementally up to date with a document store.
type Engine struct {
	docs   storage.DocumentStore
	stores storage.IndexStoreProvider

	views   *xsync.MapOf[string, *View]
	opening singleflight.Group
	queues  *taskqueue.Registry

	tempPool       *taskqueue.Pool
	backgroundPool *taskqueue.Pool

	batchSize       int
	tempConcurrency int
	backgroundSize  int

	logger     *slog.Logger
	onMapError func(*MapError)
	observer   Observer
}

// Option configures an Engine.
type Option func(*Engine) error

// WithBatchSize sets how many changes are processed per persisted batch.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		e.batchSize = size
		return nil
	}
}

// WithTempConcurrency bounds how many temporary views are built at once.
// Default is 1.
func WithTempConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.tempConcurrency = n
		return nil
	}
}

// WithBackgroundPoolSize bounds concurrent scheduled updates.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithBackgroundPoolSize(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.backgroundSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithErrorHandler receives map function failures. The default handler logs
// them at warn level.
func WithErrorHandler(fn func(*MapError)) Option {
	return func(e *Engine) error {
		e.onMapError = fn
		return nil
	}
}

// WithObserver adds an Observer. It may be given more than once.
func WithObserver(observer Observer) Option {
	return func(e *Engine) error {
		if observer == nil {
			return nil
		}
		if _, ok := e.observer.(*noopObserver); ok {
			e.observer = observer
			return nil
		}
		e.observer = multiObserver{e.observer, observer}
		return nil
	}
}

// NewEngine creates a view engine over a document store.
func NewEngine(docs storage.DocumentStore, stores storage.IndexStoreProvider, opts ...Option) (*Engine, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if stores == nil {
		return nil, ErrIndexStoreProviderRequired
	}

	backgroundSize := runtime.NumCPU() / 2
	if backgroundSize < 1 {
		backgroundSize = 1
	}

	e := &Engine{
		docs:            docs,
		stores:          stores,
		views:           xsync.NewMapOf[string, *View](),
		queues:          taskqueue.NewRegistry(),
		batchSize:       DefaultBatchSize,
		tempConcurrency: 1,
		backgroundSize:  backgroundSize,
		logger:          slog.Default(),
		observer:        &noopObserver{},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.onMapError == nil {
		e.onMapError = func(err *MapError) {
			e.logger.Warn("map function failed", "view", err.View, "doc", err.DocID, "err", err.Err)
		}
	}

	var err error
	if e.tempPool, err = taskqueue.NewPool(e.tempConcurrency, taskqueue.WithPoolLogger(e.logger)); err != nil {
		return nil, err
	}
	if e.backgroundPool, err = taskqueue.NewPool(e.backgroundSize, taskqueue.WithPoolLogger(e.logger)); err != nil {
		e.tempPool.Release()
		return nil, err
	}

	return e, nil
}

// Open returns the view for def, creating its index store on first use.
// Concurrent first opens of the same name share one store.
func (e *Engine) Open(ctx context.Context, def Definition) (*View, error) {
	if err := def.validate(true); err != nil {
		return nil, err
	}
	if v, ok := e.views.Load(def.Name); ok && !v.Destroyed() {
		return v, nil
	}

	res, err, _ := e.opening.Do(def.Name, func() (any, error) {
		if v, ok := e.views.Load(def.Name); ok && !v.Destroyed() {
			return v, nil
		}
		store, err := e.stores.OpenIndexStore(ctx, def.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to open view %s: %w", def.Name, err)
		}
		v := &View{def: def, store: store, queue: e.queues.Queue(def.Name)}
		e.views.Store(def.Name, v)
		e.logger.Debug("opened view", "view", def.Name)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*View), nil
}

// Update brings the view up to date with the document store.
func (e *Engine) Update(ctx context.Context, v *View) error {
	return v.queue.Run(ctx, func(ctx context.Context) error {
		return e.update(ctx, v)
	})
}

// ScheduleUpdate queues a maintenance pass on the background pool and
// returns without waiting for it.
func (e *Engine) ScheduleUpdate(v *View) error {
	return e.backgroundPool.Go(func() {
		if err := e.Update(context.Background(), v); err != nil && !errors.Is(err, ErrViewDestroyed) {
			e.logger.Warn("scheduled view update failed", "view", v.Name(), "err", err)
		}
	})
}

// Reader queries a view from inside its task queue. It is only valid within
// the callback it was passed to.
type Reader struct {
	engine *Engine
	view   *View
}

// Query runs a view query without waiting on the view's queue.
func (r *Reader) Query(ctx context.Context, opts QueryOptions) (*Result, error) {
	if err := opts.validate(r.view.def); err != nil {
		return nil, err
	}
	return r.engine.query(ctx, r.view, opts)
}

// Read runs fn against the view as of the staleness mode. With
// core.StaleDefault the view is brought up to date first, in the same queue
// slot; with core.StaleUpdateAfter an update is scheduled once fn returns.
func (e *Engine) Read(ctx context.Context, def Definition, stale core.StaleMode, fn func(ctx context.Context, r *Reader) error) error {
	v, err := e.Open(ctx, def)
	if err != nil {
		return err
	}
	return e.readOpened(ctx, def, v, stale, fn)
}

// readOpened runs fn against v. When v was destroyed after it was opened,
// def is reopened once and read from the fresh view.
func (e *Engine) readOpened(ctx context.Context, def Definition, v *View, stale core.StaleMode, fn func(ctx context.Context, r *Reader) error) error {
	err := e.readView(ctx, v, stale, fn)
	if !errors.Is(err, ErrViewDestroyed) {
		return err
	}
	e.logger.Debug("view destroyed while queued, reopening", "view", v.Name())
	if v, err = e.Open(ctx, def); err != nil {
		return err
	}
	return e.readView(ctx, v, stale, fn)
}

func (e *Engine) readView(ctx context.Context, v *View, stale core.StaleMode, fn func(ctx context.Context, r *Reader) error) error {
	err := v.queue.Run(ctx, func(ctx context.Context) error {
		if v.Destroyed() {
			return fmt.Errorf("%w: %s", ErrViewDestroyed, v.Name())
		}
		if stale == core.StaleDefault {
			if err := e.update(ctx, v); err != nil {
				return err
			}
		}
		return fn(ctx, &Reader{engine: e, view: v})
	})
	if err != nil {
		return err
	}

	if stale == core.StaleUpdateAfter {
		if err := e.ScheduleUpdate(v); err != nil {
			e.logger.Warn("failed to schedule view update", "view", v.Name(), "err", err)
		}
	}
	return nil
}

// Query opens the view if needed and queries it.
func (e *Engine) Query(ctx context.Context, def Definition, opts QueryOptions) (*Result, error) {
	if err := def.validate(true); err != nil {
		return nil, err
	}
	if err := opts.validate(def); err != nil {
		return nil, err
	}
	var res *Result
	err := e.Read(ctx, def, opts.Stale, func(ctx context.Context, r *Reader) error {
		var err error
		res, err = r.Query(ctx, opts)
		return err
	})
	return res, err
}

// QueryTemporary builds a throwaway view for def, queries it and destroys
// its store on every exit path. The name of def is ignored. Temporary views
// share a bounded pool.
func (e *Engine) QueryTemporary(ctx context.Context, def Definition, opts QueryOptions) (*Result, error) {
	if err := def.validate(false); err != nil {
		return nil, err
	}
	if err := opts.validate(def); err != nil {
		return nil, err
	}

	var res *Result
	err := e.tempPool.Do(ctx, func(ctx context.Context) error {
		name := TemporaryPrefix + uuid.NewString()
		store, err := e.stores.OpenIndexStore(ctx, name)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.stores.DestroyIndexStore(context.Background(), name); err != nil {
				e.logger.Error("failed to destroy temporary view", "view", name, "err", err)
			}
		}()

		def.Name = name
		v := &View{def: def, store: store, queue: &taskqueue.TaskQueue{}}
		if err := e.update(ctx, v); err != nil {
			return err
		}
		res, err = e.query(ctx, v, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Destroy removes the view's persisted state. Work queued on the view before
// the call finishes first; later opens start from an empty index.
func (e *Engine) Destroy(ctx context.Context, name string) error {
	if name == "" {
		return ErrViewNameRequired
	}
	return e.queues.Queue(name).Run(ctx, func(ctx context.Context) error {
		if v, ok := e.views.LoadAndDelete(name); ok {
			v.destroyed.Store(true)
		}
		if err := e.stores.DestroyIndexStore(ctx, name); err != nil {
			return fmt.Errorf("failed to destroy view %s: %w", name, err)
		}
		e.logger.Info("destroyed view", "view", name)
		return nil
	})
}

// Forget drops every opened view without touching persisted state. Used
// after the source collection has been destroyed underneath the engine.
func (e *Engine) Forget() {
	e.views.Range(func(name string, v *View) bool {
		v.destroyed.Store(true)
		e.views.Delete(name)
		return true
	})
}

// Close releases the engine's worker pools.
func (e *Engine) Close() {
	e.tempPool.Release()
	e.backgroundPool.Release()
}
