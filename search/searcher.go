package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/fields"
	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/storage"
	"golang.org/x/sync/errgroup"
)

// Hit is a scored search result.
type Hit struct {
	ID           string            `json:"id"`
	Score        float64           `json:"score"`
	Doc          *core.Document    `json:"doc,omitempty"`
	Highlighting map[string]string `json:"highlighting,omitempty"`
}

// Response is the outcome of a search. Build and destroy requests only set OK.
type Response struct {
	TotalRows int
	Rows      []*Hit
	OK        bool
}

func (r *Response) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			OK bool `json:"ok"`
		}{true})
	}
	rows := r.Rows
	if rows == nil {
		rows = []*Hit{}
	}
	return json.Marshal(struct {
		TotalRows int    `json:"total_rows"`
		Rows      []*Hit `json:"rows"`
	}{r.TotalRows, rows})
}

func emptyResponse() *Response {
	return &Response{Rows: []*Hit{}}
}

// Recorder receives the outcome of every search. Metrics exporters
// implement it.
type Recorder interface {
	SearchCompleted(index string, elapsed time.Duration, hits int, err error)
}

type noopRecorder struct{}

func (noopRecorder) SearchCompleted(_ string, _ time.Duration, _ int, _ error) {}

// Searcher answers full-text queries from persisted search indexes.
type Searcher struct {
	engine           *mapreduce.Engine
	docs             storage.DocumentStore
	logger           *slog.Logger
	recorder         Recorder
	highlighter      *highlighter
	patternCacheSize int
	hydrateLimit     int
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRecorder sets a Recorder for search outcomes.
func WithRecorder(recorder Recorder) Option {
	return func(s *Searcher) error {
		if recorder == nil {
			recorder = noopRecorder{}
		}
		s.recorder = recorder
		return nil
	}
}

// WithPatternCacheSize sets how many compiled highlight patterns are kept.
// Default is DefaultPatternCacheSize.
func WithPatternCacheSize(size int) Option {
	return func(s *Searcher) error {
		s.patternCacheSize = size
		return nil
	}
}

// WithHydrateConcurrency bounds concurrent document reads while
// highlighting. Default is runtime.NumCPU().
func WithHydrateConcurrency(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			n = 1
		}
		s.hydrateLimit = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(engine *mapreduce.Engine, docs storage.DocumentStore, opts ...Option) (*Searcher, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}

	s := &Searcher{
		engine:           engine,
		docs:             docs,
		logger:           slog.Default(),
		recorder:         noopRecorder{},
		patternCacheSize: DefaultPatternCacheSize,
		hydrateLimit:     runtime.NumCPU(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	h, err := newHighlighter(s.patternCacheSize)
	if err != nil {
		return nil, err
	}
	s.highlighter = h
	return s, nil
}

// Search runs a search request. Requests with Destroy or Build set act on
// the index instead and respond with OK.
func (s *Searcher) Search(ctx context.Context, opts Options) (*Response, error) {
	return s.SearchWithMonitor(ctx, opts, nil)
}

// SearchWithMonitor runs a search request with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, opts Options, monitor SearchMonitor) (*Response, error) {
	ix, err := ResolveIndex(opts)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Destroy:
		return s.destroy(ctx, ix)
	case opts.Build:
		return s.build(ctx, ix)
	}

	start := time.Now()
	resp, err := s.search(ctx, ix, opts, monitor)
	hits := 0
	if resp != nil {
		hits = resp.TotalRows
	}
	s.recorder.SearchCompleted(ix.Name, time.Since(start), hits, err)
	return resp, err
}

// Build brings the index for opts up to date.
func (s *Searcher) Build(ctx context.Context, opts Options) error {
	ix, err := ResolveIndex(opts)
	if err != nil {
		return err
	}
	_, err = s.build(ctx, ix)
	return err
}

// Destroy removes the index for opts.
func (s *Searcher) Destroy(ctx context.Context, opts Options) error {
	ix, err := ResolveIndex(opts)
	if err != nil {
		return err
	}
	_, err = s.destroy(ctx, ix)
	return err
}

func (s *Searcher) build(ctx context.Context, ix *Index) (*Response, error) {
	v, err := s.engine.Open(ctx, ix.Definition())
	if err != nil {
		return nil, err
	}
	if err := s.engine.Update(ctx, v); err != nil {
		s.logger.Error("error building index", "index", ix.Name, "err", err)
		return nil, err
	}
	s.logger.Debug("built index", "index", ix.Name)
	return &Response{OK: true}, nil
}

func (s *Searcher) destroy(ctx context.Context, ix *Index) (*Response, error) {
	if err := s.engine.Destroy(ctx, ix.Name); err != nil {
		s.logger.Error("error destroying index", "index", ix.Name, "err", err)
		return nil, err
	}
	return &Response{OK: true}, nil
}

func (s *Searcher) search(ctx context.Context, ix *Index, opts Options, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, ErrInvalidPagination
	}
	mm, err := parseMinShouldMatch(opts.MinShouldMatch)
	if err != nil {
		return nil, err
	}

	monitor.Start(opts.Query, ix.Name)

	// 1. Distinct query terms
	terms := uniqueTerms(ix.Tokenize(opts.Query))
	monitor.AfterTokenize(terms)
	if len(terms) == 0 {
		resp := emptyResponse()
		monitor.Finish(resp)
		return resp, nil
	}

	// 2. Postings and norms, read from the same view state
	var hits []*Hit
	var matched map[string]fieldTerms
	err = s.engine.Read(ctx, ix.Definition(), opts.Stale, func(ctx context.Context, r *mapreduce.Reader) error {
		keys := make([]string, len(terms))
		for i, term := range terms {
			keys[i] = PostingPrefix + term
		}
		postings, err := r.Query(ctx, mapreduce.QueryOptions{Keys: keys, SkipTotalRows: true})
		if err != nil {
			return fmt.Errorf("failed to read postings: %w", err)
		}

		df, docs := collectPostings(postings.Rows, len(ix.Fields))
		monitor.AfterPostings(df, len(docs))

		// 3. Minimum should match
		dropped := applyMinShouldMatch(docs, len(terms), mm)
		monitor.AfterMinShouldMatch(len(docs), dropped)
		if len(docs) == 0 {
			return nil
		}

		ids := make([]string, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		normKeys := make([]string, len(ids))
		for i, id := range ids {
			normKeys[i] = NormPrefix + id
		}
		normRows, err := r.Query(ctx, mapreduce.QueryOptions{Keys: normKeys, SkipTotalRows: true})
		if err != nil {
			return fmt.Errorf("failed to read field norms: %w", err)
		}
		norms := make(map[string][]float64, len(normRows.Rows))
		for _, row := range normRows.Rows {
			norms[row.ID] = row.Value.Numbers
		}

		// 4. Score
		hits = scoreDocuments(terms, df, docs, norms, ix.Fields)
		matched = docs
		return nil
	})
	if err != nil {
		s.logger.Error("error querying index", "index", ix.Name, "err", err)
		return nil, err
	}
	monitor.AfterScoring(hits)

	// 5. Paginate before hydrating
	resp := &Response{TotalRows: len(hits), Rows: paginate(hits, opts.Skip, opts.Limit)}

	if opts.IncludeDocs {
		if err := s.includeDocs(ctx, resp.Rows); err != nil {
			return nil, err
		}
	}
	if opts.Highlighting {
		if err := s.applyHighlighting(ctx, ix, opts, resp.Rows, matched); err != nil {
			return nil, err
		}
	}

	monitor.Finish(resp)
	return resp, nil
}

func uniqueTerms(tokens []string) []string {
	terms := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	return terms
}

func (s *Searcher) includeDocs(ctx context.Context, hits []*Hit) error {
	if len(hits) == 0 {
		return nil
	}
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	docs, err := s.docs.GetMany(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving documents", "count", len(ids), "err", err)
		return err
	}
	for i, hit := range hits {
		hit.Doc = docs[i]
	}
	return nil
}

// applyHighlighting marks matched terms in every field that matched.
// Documents are fetched concurrently when not already included.
func (s *Searcher) applyHighlighting(ctx context.Context, ix *Index, opts Options, hits []*Hit, matched map[string]fieldTerms) error {
	pre, post := opts.markers()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hydrateLimit)
	for _, hit := range hits {
		g.Go(func() error {
			doc := hit.Doc
			if doc == nil {
				var err error
				doc, err = s.docs.Get(ctx, hit.ID)
				if errors.Is(err, storage.ErrNotFound) {
					s.logger.Debug("document vanished before highlighting", "id", hit.ID)
					return nil
				}
				if err != nil {
					return err
				}
			}

			hit.Highlighting = make(map[string]string)
			for field, counts := range matched[hit.ID] {
				if len(counts) == 0 {
					continue
				}
				spec := ix.Fields[field]
				text, _ := fields.Extract(spec, doc.Body)
				terms := make([]string, 0, len(counts))
				for term := range counts {
					terms = append(terms, term)
				}
				hit.Highlighting[spec.Path] = s.highlighter.highlight(text, terms, pre, post)
			}
			return nil
		})
	}
	return g.Wait()
}
