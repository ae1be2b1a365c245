package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/storage"
)

// DefaultBatchSize is the number of documents written per BulkDocs call.
const DefaultBatchSize = 500

// Pipeline writes documents to a collection and keeps chosen indexes warm.
type Pipeline struct {
	docs      storage.DocumentStore
	engine    *mapreduce.Engine
	warm      []*warmIndex
	warmPool  *ants.Pool
	pending   sync.WaitGroup
	batchSize int
	overwrite bool
	progress  func(written int)
	logger    *slog.Logger
}

type warmIndex struct {
	def       mapreduce.Definition
	scheduled atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets how many documents are written per transaction.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithOverwrite replaces existing documents instead of failing with
// storage.ErrConflict when an input document carries no revision.
func WithOverwrite(overwrite bool) Option {
	return func(p *Pipeline) error {
		p.overwrite = overwrite
		return nil
	}
}

// WithWarmIndexes brings the given views up to date after every batch.
func WithWarmIndexes(engine *mapreduce.Engine, defs ...mapreduce.Definition) Option {
	return func(p *Pipeline) error {
		if engine == nil {
			return ErrEngineRequired
		}
		p.engine = engine
		for _, def := range defs {
			p.warm = append(p.warm, &warmIndex{def: def})
		}
		return nil
	}
}

// WithPoolSize sets the worker pool size for index warm-ups.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.warmPool != nil {
			p.warmPool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.warmPool = pool
		return nil
	}
}

// WithProgress is called with the running total after every batch.
func WithProgress(fn func(written int)) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(docs storage.DocumentStore, opts ...Option) (*Pipeline, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	warmPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		docs:      docs,
		warmPool:  warmPool,
		batchSize: DefaultBatchSize,
		progress:  func(int) {},
		logger:    slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	if p.progress == nil {
		p.progress = func(int) {}
	}

	return p, nil
}

// Ingest writes documents in one transaction. Documents without an ID get
// a random one. Warm-ups of the configured indexes are scheduled
// asynchronously once the write commits.
func (p *Pipeline) Ingest(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
	}
	if p.overwrite {
		if err := p.fillRevisions(ctx, docs); err != nil {
			return nil, err
		}
	}

	stored, err := p.docs.BulkDocs(ctx, docs...)
	if err != nil {
		return nil, err
	}
	p.scheduleWarmups()
	return stored, nil
}

// fillRevisions sets the current revision on documents that carry none.
func (p *Pipeline) fillRevisions(ctx context.Context, docs []*core.Document) error {
	var ids []string
	var targets []*core.Document
	for _, doc := range docs {
		if doc.Rev == "" {
			ids = append(ids, doc.ID)
			targets = append(targets, doc)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	existing, err := p.docs.GetMany(ctx, ids...)
	if err != nil {
		return err
	}
	for i, current := range existing {
		if current != nil {
			targets[i].Rev = current.Rev
		}
	}
	return nil
}

// scheduleWarmups submits one update per index unless one is already waiting.
func (p *Pipeline) scheduleWarmups() {
	for _, w := range p.warm {
		if !w.scheduled.CompareAndSwap(false, true) {
			continue
		}
		p.pending.Add(1)
		err := p.warmPool.Submit(func() {
			defer p.pending.Done()
			w.scheduled.Store(false)
			if err := p.warmup(context.Background(), w.def); err != nil {
				p.logger.Error("error warming index", "index", w.def.Name, "err", err)
			}
		})
		if err != nil {
			p.pending.Done()
			w.scheduled.Store(false)
			p.logger.Error("error scheduling index warm-up", "index", w.def.Name, "err", err)
		}
	}
}

func (p *Pipeline) warmup(ctx context.Context, def mapreduce.Definition) error {
	v, err := p.engine.Open(ctx, def)
	if err != nil {
		return err
	}
	return p.engine.Update(ctx, v)
}

// Load decodes a JSON array of documents or a stream of JSON documents from
// r and ingests them in batches. It returns the number of documents written.
func (p *Pipeline) Load(ctx context.Context, r io.Reader) (int, error) {
	written := 0
	batch := make([]*core.Document, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := p.Ingest(ctx, batch...); err != nil {
			return fmt.Errorf("failed to write documents %d-%d: %w", written+1, written+len(batch), err)
		}
		written += len(batch)
		p.logger.Debug("wrote documents", "count", len(batch), "total", written)
		p.progress(written)
		batch = make([]*core.Document, 0, p.batchSize)
		return nil
	}

	err := decodeDocuments(r, func(doc *core.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, doc)
		if len(batch) >= p.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// decodeDocuments calls fn for every document in r. A stream starting with
// '[' is read as one array; anything else as consecutive JSON objects.
func decodeDocuments(r io.Reader, fn func(*core.Document) error) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		for dec.More() {
			doc := &core.Document{}
			if err := dec.Decode(doc); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil
	}

	for {
		doc := &core.Document{}
		err := dec.Decode(doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// Wait blocks until every scheduled warm-up has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.warmPool != nil {
		p.warmPool.Release()
	}
}
