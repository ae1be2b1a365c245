// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package quicksearch

import (
	"context"
	"log/slog"

	"github.com/poiesic/quicksearch/config"
	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/metrics"
	"github.com/poiesic/quicksearch/search"
	"github.com/poiesic/quicksearch/storage"
	"github.com/poiesic/quicksearch/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

type Database struct {
	backend  *badger.Backend
	docs     *badger.DocumentStore
	engine   *mapreduce.Engine
	searcher *search.Searcher
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	language string
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger       *slog.Logger
	observers    []mapreduce.Observer
	errorHandler func(*mapreduce.MapError)
	registerer   prometheus.Registerer
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithObserver adds an index maintenance observer.
func WithObserver(observer mapreduce.Observer) DatabaseOption {
	return func(o *databaseOptions) {
		o.observers = append(o.observers, observer)
	}
}

// WithErrorHandler receives map function failures.
func WithErrorHandler(fn func(*mapreduce.MapError)) DatabaseOption {
	return func(o *databaseOptions) {
		o.errorHandler = fn
	}
}

// WithRegisterer registers metrics with reg instead of a private registry.
// Metrics are enabled whenever a registerer is given.
func WithRegisterer(reg prometheus.Registerer) DatabaseOption {
	return func(o *databaseOptions) {
		o.registerer = reg
	}
}

// NewDatabase opens the collection described by cfg. A nil cfg uses
// config.DefaultConfig().
func NewDatabase(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply options
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
		err      error
	)
	if cfg.Metrics.Enabled || options.registerer != nil {
		reg := options.registerer
		if reg == nil {
			private := prometheus.NewRegistry()
			reg, gatherer = private, private
		} else if g, ok := reg.(prometheus.Gatherer); ok {
			gatherer = g
		}
		if m, err = metrics.New(reg); err != nil {
			return nil, err
		}
	}

	// Open backend
	backend, err := badger.OpenBackend(cfg.DataDir, cfg.InMemory, badger.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}
	docs := badger.NewDocumentStore(backend)

	engineOpts := []mapreduce.Option{
		mapreduce.WithBatchSize(cfg.BatchSize),
		mapreduce.WithTempConcurrency(cfg.TempConcurrency),
		mapreduce.WithBackgroundPoolSize(cfg.BackgroundPoolSize),
		mapreduce.WithLogger(options.logger),
	}
	if options.errorHandler != nil {
		engineOpts = append(engineOpts, mapreduce.WithErrorHandler(options.errorHandler))
	}
	if m != nil {
		engineOpts = append(engineOpts, mapreduce.WithObserver(m))
	}
	for _, observer := range options.observers {
		engineOpts = append(engineOpts, mapreduce.WithObserver(observer))
	}
	engine, err := mapreduce.NewEngine(docs, badger.NewIndexStores(backend), engineOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	searchOpts := []search.Option{
		search.WithLogger(options.logger),
		search.WithPatternCacheSize(cfg.PatternCacheSize),
		search.WithHydrateConcurrency(cfg.HydrateConcurrency),
	}
	if m != nil {
		searchOpts = append(searchOpts, search.WithRecorder(m))
	}
	searcher, err := search.NewSearcher(engine, docs, searchOpts...)
	if err != nil {
		engine.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:  backend,
		docs:     docs,
		engine:   engine,
		searcher: searcher,
		metrics:  m,
		gatherer: gatherer,
		language: cfg.Language,
		logger:   options.logger,
	}, nil
}

func (db *Database) Close() error {
	db.engine.Close()

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Documents() storage.DocumentStore {
	return db.docs
}

func (db *Database) Engine() *mapreduce.Engine {
	return db.engine
}

func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// Metrics returns the collectors, or nil when metrics are disabled.
func (db *Database) Metrics() *metrics.Metrics {
	return db.metrics
}

// Gatherer returns the registry holding the collectors, or nil when
// metrics are disabled or registered elsewhere.
func (db *Database) Gatherer() prometheus.Gatherer {
	return db.gatherer
}

// Search runs opts against the collection. Requests naming no language use
// the configured one.
func (db *Database) Search(ctx context.Context, opts search.Options) (*search.Response, error) {
	return db.searcher.Search(ctx, db.withLanguage(opts))
}

// SearchWithMonitor is Search with a monitor attached.
func (db *Database) SearchWithMonitor(ctx context.Context, opts search.Options, monitor search.SearchMonitor) (*search.Response, error) {
	return db.searcher.SearchWithMonitor(ctx, db.withLanguage(opts), monitor)
}

func (db *Database) withLanguage(opts search.Options) search.Options {
	if opts.Language == "" {
		opts.Language = db.language
	}
	return opts
}

// Destroy removes every document and every index built over them. The
// database stays open and empty.
func (db *Database) Destroy(ctx context.Context) error {
	if err := db.docs.Destroy(ctx); err != nil {
		db.logger.Error("error destroying collection", "err", err)
		return err
	}
	db.engine.Forget()
	return nil
}
