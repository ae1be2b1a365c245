package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/quicksearch/analysis"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/storage"
	"github.com/poiesic/quicksearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, body map[string]any) *core.Document {
	return &core.Document{ID: id, Body: body}
}

// courtDocs: "court" occurs once in 1, twice in 2 and twice in the longer 3.
func courtDocs() []*core.Document {
	return []*core.Document{
		doc("1", map[string]any{"title": "A clouded title", "text": "the court ruled on the matter today", "desc": "nothing else here"}),
		doc("2", map[string]any{"title": "Another title", "text": "court and court", "desc": "short"}),
		doc("3", map[string]any{"title": "Weekend session", "text": "the court heard the case and the court adjourned for the long weekend", "desc": "a quick sketch"}),
	}
}

func marioDocs() []*core.Document {
	return []*core.Document{
		doc("1", map[string]any{
			"title": "This title is about Yoshi",
			"text":  "This text is about Mario but it is much longer so it should not be weighted so much",
		}),
		doc("2", map[string]any{
			"title": "This title is about Mario",
			"text":  "This text is about Yoshi but it is much longer so it should not be weighted so much",
		}),
		doc("3", map[string]any{"title": "The albino elephant"}),
		doc("4", map[string]any{"title": "The albino tiger cub", "text": "An elephant and a tiger"}),
	}
}

// rankedDocs: earlier documents repeat their name more often.
func rankedDocs() []*core.Document {
	var docs []*core.Document
	for i := 0; i < 20; i++ {
		yoshi := "This title is about Yoshi" + strings.Repeat(" Yoshi", 20-i)
		mario := "This title is about Mario" + strings.Repeat(" Mario", 20-i)
		docs = append(docs,
			doc(fmt.Sprintf("yoshi_%d", i), map[string]any{"title": yoshi}),
			doc(fmt.Sprintf("mario_%d", i), map[string]any{"title": mario}),
		)
	}
	return docs
}

func structuredDocs() []*core.Document {
	return []*core.Document{
		doc("1", map[string]any{"list": []any{"this", "is", "an", "array"}}),
		doc("2", map[string]any{"deep": map[string]any{"structure": map[string]any{"text": "squirrels are cute"}}}),
		doc("3", map[string]any{"aNumber": 1, "deep": map[string]any{"structure": map[string]any{"text": "nothing to see"}}}),
		doc("4", map[string]any{"aNumber": 2}),
		doc("5", map[string]any{"nested": map[string]any{"array": []any{
			map[string]any{"aField": "something"},
			map[string]any{"aField": "else"},
		}}}),
		doc("10", map[string]any{"nested": map[string]any{"array": []any{
			map[string]any{"aField": "Something here"},
		}}}),
		doc("11", map[string]any{"nested": map[string]any{"array": []any{
			map[string]any{"aField": "nothing"},
		}}}),
	}
}

func categoryDocs() []*core.Document {
	return []*core.Document{
		doc("1", map[string]any{"category": "PL", "type": "static"}),
		doc("2", map[string]any{"category": "PL", "type": "dynamic"}),
		doc("3", map[string]any{"category": "PL", "type": "dynamic"}),
		doc("4", map[string]any{"category": "EN", "type": "dynamic"}),
	}
}

type harness struct {
	searcher *Searcher
	engine   *mapreduce.Engine

	mu        sync.Mutex
	mapErrors []*mapreduce.MapError
}

func newHarness(t *testing.T, docs []*core.Document, opts ...Option) *harness {
	t.Helper()
	store, indexes, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	h := &harness{}
	engine, err := mapreduce.NewEngine(store, indexes, mapreduce.WithErrorHandler(func(err *mapreduce.MapError) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.mapErrors = append(h.mapErrors, err)
	}))
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h.engine = engine

	h.searcher, err = NewSearcher(engine, store, opts...)
	require.NoError(t, err)

	if len(docs) > 0 {
		_, err = store.BulkDocs(context.Background(), docs...)
		require.NoError(t, err)
	}
	return h
}

func (h *harness) search(t *testing.T, opts Options) *Response {
	t.Helper()
	resp, err := h.searcher.Search(context.Background(), opts)
	require.NoError(t, err)
	return resp
}

func idsOf(resp *Response) []string {
	ids := make([]string, 0, len(resp.Rows))
	for _, hit := range resp.Rows {
		ids = append(ids, hit.ID)
	}
	return ids
}

func distinctScores(resp *Response) int {
	seen := make(map[float64]bool)
	for _, hit := range resp.Rows {
		seen[hit.Score] = true
	}
	return len(seen)
}

var articleFields = Fields("title", "text", "desc")

func TestNewSearcher(t *testing.T) {
	store, indexes, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	engine, err := mapreduce.NewEngine(store, indexes)
	require.NoError(t, err)
	defer engine.Close()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(engine, store)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(engine, store, WithLogger(nil), WithRecorder(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil engine", func(t *testing.T) {
		_, err := NewSearcher(nil, store)
		assert.Equal(t, ErrEngineRequired, err)
	})

	t.Run("nil document store", func(t *testing.T) {
		_, err := NewSearcher(engine, nil)
		assert.Equal(t, ErrDocumentStoreRequired, err)
	})
}

func TestSearch_Basic(t *testing.T) {
	h := newHarness(t, courtDocs())

	t.Run("single match", func(t *testing.T) {
		resp := h.search(t, Options{Query: "sketch", Fields: articleFields})
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, "3", resp.Rows[0].ID)
		assert.InDelta(t, 0.5774, resp.Rows[0].Score, 0.0001)
	})

	t.Run("zero results", func(t *testing.T) {
		resp := h.search(t, Options{Query: "fizzbuzz", Fields: articleFields})
		assert.Empty(t, resp.Rows)
		assert.Equal(t, 0, resp.TotalRows)
	})

	t.Run("empty query", func(t *testing.T) {
		resp := h.search(t, Options{Query: "   ", Fields: articleFields})
		assert.Empty(t, resp.Rows)
	})

	t.Run("shorter fields rank higher", func(t *testing.T) {
		resp := h.search(t, Options{Query: "court", Fields: articleFields})
		assert.Equal(t, []string{"2", "3", "1"}, idsOf(resp))
		assert.Equal(t, 3, resp.TotalRows)
	})

	t.Run("case insensitive", func(t *testing.T) {
		resp := h.search(t, Options{Query: "COURT", Fields: articleFields, Stale: core.StaleOK})
		assert.Equal(t, []string{"2", "3", "1"}, idsOf(resp))
	})
}

func TestSearch_EqualScores(t *testing.T) {
	h := newHarness(t, []*core.Document{
		doc("a", map[string]any{"title": "first", "text": "some text here"}),
		doc("b", map[string]any{"title": "second", "text": "more text here"}),
	})

	resp := h.search(t, Options{Query: "text", Fields: articleFields})
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, resp.Rows[0].Score, resp.Rows[1].Score)
	assert.Equal(t, []string{"a", "b"}, idsOf(resp), "ties break by id")
}

func TestSearch_MinShouldMatch(t *testing.T) {
	h := newHarness(t, courtDocs())

	tests := []struct {
		name  string
		query string
		mm    string
		want  []string
	}{
		{"default requires every term", "clouded title", "", []string{"1"}},
		{"100% with 1/2 match", "clouded title", "100%", []string{"1"}},
		{"50% with 2/2 match", "clouded title", "50%", []string{"1", "2"}},
		{"1% with 1/3 match", "clouded nonsenseword anothernonsenseword", "1%", []string{"1"}},
		{"34% with 1/3 match", "clouded nonsenseword anothernonsenseword", "34%", []string{}},
		{"34% with 2/3 match", "clouded title anothernonsenseword", "34%", []string{"1"}},
		{"33% with 1/3 match", "clouded nonsenseword anothernonsenseword", "33%", []string{"1"}},
		{"single term ignores mm", "court", "100%", []string{"2", "3", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.search(t, Options{Query: tt.query, Fields: articleFields, MinShouldMatch: tt.mm})
			assert.Equal(t, tt.want, idsOf(resp))
		})
	}

	_, err := h.searcher.Search(context.Background(), Options{Query: "court", Fields: articleFields, MinShouldMatch: "most"})
	assert.ErrorIs(t, err, ErrInvalidMinShouldMatch)
}

func TestSearch_Weighting(t *testing.T) {
	h := newHarness(t, marioDocs())

	t.Run("short fields weigh more", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: articleFields})
		assert.Equal(t, []string{"1", "2"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)

		resp = h.search(t, Options{Query: "mario", Fields: articleFields})
		assert.Equal(t, []string{"2", "1"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)
	})

	t.Run("dismax", func(t *testing.T) {
		resp := h.search(t, Options{Query: "albino elephant", Fields: articleFields, MinShouldMatch: "50%"})
		assert.Equal(t, []string{"3", "4"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)
	})

	t.Run("one field only", func(t *testing.T) {
		resp := h.search(t, Options{Query: "mario", Fields: Fields("text")})
		assert.Equal(t, []string{"1"}, idsOf(resp))
	})

	t.Run("pure stopwords", func(t *testing.T) {
		resp := h.search(t, Options{Query: "to be or not to be", Fields: Fields("text")})
		assert.Empty(t, resp.Rows)
	})

	t.Run("boosted fields", func(t *testing.T) {
		boosts := BoostedFields(map[string]float64{"text": 10, "title": 1})

		resp := h.search(t, Options{Query: "mario", Fields: boosts})
		assert.Equal(t, []string{"1", "2"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)

		resp = h.search(t, Options{Query: "yoshi", Fields: boosts})
		assert.Equal(t, []string{"2", "1"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)
	})
}

func TestSearch_RepeatedWords(t *testing.T) {
	h := newHarness(t, []*core.Document{
		doc("1", map[string]any{"text": "word word"}),
		doc("2", map[string]any{"text": "word"}),
	})

	resp := h.search(t, Options{Query: "word", Fields: Fields("text")})
	assert.Equal(t, []string{"1", "2"}, idsOf(resp))
	assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)
}

func TestSearch_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("destroy", func(t *testing.T) {
		h := newHarness(t, marioDocs())
		opts := Options{Query: "mario", Fields: Fields("text")}

		assert.Equal(t, []string{"1"}, idsOf(h.search(t, opts)))

		resp := h.search(t, Options{Fields: Fields("text"), Destroy: true})
		assert.True(t, resp.OK)

		opts.Stale = core.StaleOK
		assert.Empty(t, h.search(t, opts).Rows)
	})

	t.Run("stale", func(t *testing.T) {
		h := newHarness(t, marioDocs())
		opts := Options{Query: "mario", Fields: Fields("text", "title"), Stale: core.StaleOK}

		assert.Empty(t, h.search(t, opts).Rows)

		opts.Stale = core.StaleUpdateAfter
		assert.LessOrEqual(t, len(h.search(t, opts).Rows), 2)

		opts.Stale = core.StaleDefault
		assert.Len(t, h.search(t, opts).Rows, 2)
	})

	t.Run("explicit build", func(t *testing.T) {
		h := newHarness(t, marioDocs())

		resp := h.search(t, Options{Fields: Fields("text", "title"), Build: true})
		assert.True(t, resp.OK)
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(data))

		resp = h.search(t, Options{Query: "mario", Fields: Fields("text", "title"), Stale: core.StaleOK})
		assert.Len(t, resp.Rows, 2)
	})

	t.Run("build and destroy methods", func(t *testing.T) {
		h := newHarness(t, marioDocs())
		opts := Options{Query: "mario", Fields: Fields("title")}

		require.NoError(t, h.searcher.Build(ctx, opts))
		opts.Stale = core.StaleOK
		assert.Equal(t, []string{"2"}, idsOf(h.search(t, opts)))

		require.NoError(t, h.searcher.Destroy(ctx, opts))
		assert.Empty(t, h.search(t, opts).Rows)
	})

	t.Run("field order does not change the index", func(t *testing.T) {
		h := newHarness(t, marioDocs())

		resp := h.search(t, Options{Query: "mario", Fields: Fields("text", "title")})
		assert.Equal(t, []string{"2", "1"}, idsOf(resp))

		resp = h.search(t, Options{Query: "mario", Fields: Fields("title", "text"), Stale: core.StaleOK})
		assert.Equal(t, []string{"2", "1"}, idsOf(resp))
	})
}

func TestSearch_IndexFollowsChanges(t *testing.T) {
	store, indexes, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	engine, err := mapreduce.NewEngine(store, indexes)
	require.NoError(t, err)
	defer engine.Close()
	searcher, err := NewSearcher(engine, store)
	require.NoError(t, err)

	ctx := context.Background()
	opts := Options{Query: "mario", Fields: Fields("title")}

	stored, err := store.BulkDocs(ctx, marioDocs()...)
	require.NoError(t, err)

	resp, err := searcher.Search(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, idsOf(resp))

	// Retitle 2 and add a new match.
	retitled := &core.Document{ID: "2", Rev: stored[1].Rev, Body: map[string]any{"title": "Nothing to see"}}
	_, err = store.BulkDocs(ctx, retitled, doc("5", map[string]any{"title": "Mario again"}))
	require.NoError(t, err)

	resp, err = searcher.Search(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, idsOf(resp))

	current, err := store.Get(ctx, "5")
	require.NoError(t, err)
	_, err = store.BulkDocs(ctx, &core.Document{ID: "5", Rev: current.Rev, Deleted: true})
	require.NoError(t, err)

	resp, err = searcher.Search(ctx, opts)
	require.NoError(t, err)
	assert.Empty(t, resp.Rows)
}

func TestSearch_HydrationAndHighlighting(t *testing.T) {
	h := newHarness(t, marioDocs())
	fieldSpecs := BoostedFields(map[string]float64{"text": 1, "title": 1})

	wantDefault := []map[string]string{
		{"title": "This title is about <strong>Yoshi</strong>"},
		{"text": "This text is about <strong>Yoshi</strong> but it is much longer so it should not be weighted so much"},
	}

	highlights := func(resp *Response) []map[string]string {
		out := make([]map[string]string, 0, len(resp.Rows))
		for _, hit := range resp.Rows {
			out = append(out, hit.Highlighting)
		}
		return out
	}

	t.Run("highlighting", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs, Highlighting: true})
		assert.Equal(t, []string{"1", "2"}, idsOf(resp))
		assert.NotEqual(t, resp.Rows[0].Score, resp.Rows[1].Score)
		assert.Equal(t, wantDefault, highlights(resp))
		assert.Nil(t, resp.Rows[0].Doc)
	})

	t.Run("custom tags", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs, Highlighting: true, HighlightPre: "<em>", HighlightPost: "</em>"})
		assert.Equal(t, []map[string]string{
			{"title": "This title is about <em>Yoshi</em>"},
			{"text": "This text is about <em>Yoshi</em> but it is much longer so it should not be weighted so much"},
		}, highlights(resp))
	})

	t.Run("include docs", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs, IncludeDocs: true})
		require.Len(t, resp.Rows, 2)
		for i, want := range marioDocs()[:2] {
			require.NotNil(t, resp.Rows[i].Doc)
			assert.Equal(t, want.ID, resp.Rows[i].Doc.ID)
			assert.Equal(t, want.Body["title"], resp.Rows[i].Doc.Body["title"])
			assert.Equal(t, want.Body["text"], resp.Rows[i].Doc.Body["text"])
			assert.Nil(t, resp.Rows[i].Highlighting)
		}
	})

	t.Run("nothing extra by default", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs})
		for _, hit := range resp.Rows {
			assert.Nil(t, hit.Doc)
			assert.Nil(t, hit.Highlighting)
		}
		data, err := json.Marshal(resp.Rows[0])
		require.NoError(t, err)
		assert.NotContains(t, string(data), "highlighting")
		assert.NotContains(t, string(data), "doc")
	})

	t.Run("highlighting with include docs", func(t *testing.T) {
		resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs, Highlighting: true, IncludeDocs: true})
		assert.Equal(t, wantDefault, highlights(resp))
		for _, hit := range resp.Rows {
			assert.NotNil(t, hit.Doc)
		}
	})
}

func TestSearch_Pagination(t *testing.T) {
	h := newHarness(t, rankedDocs())
	fieldSpecs := Fields("text", "title")

	tests := []struct {
		name  string
		skip  int
		limit int
		want  []string
	}{
		{"limit", 0, 5, []string{"yoshi_0", "yoshi_1", "yoshi_2", "yoshi_3", "yoshi_4"}},
		{"skip", 15, 0, []string{"yoshi_15", "yoshi_16", "yoshi_17", "yoshi_18", "yoshi_19"}},
		{"skip and limit", 10, 5, []string{"yoshi_10", "yoshi_11", "yoshi_12", "yoshi_13", "yoshi_14"}},
		{"skip past the end", 40, 5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.search(t, Options{Query: "yoshi", Fields: fieldSpecs, Skip: tt.skip, Limit: tt.limit})
			assert.Equal(t, tt.want, idsOf(resp))
			assert.Equal(t, len(tt.want), distinctScores(resp))
			assert.Equal(t, 20, resp.TotalRows)
		})
	}

	_, err := h.searcher.Search(context.Background(), Options{Query: "yoshi", Fields: fieldSpecs, Skip: -1})
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestSearch_StructuredFields(t *testing.T) {
	h := newHarness(t, structuredDocs())

	tests := []struct {
		name   string
		fields []string
		query  string
		want   []string
	}{
		{"deep fields", []string{"deep.structure.text"}, "squirrels", []string{"2"}},
		{"array of nested objects", []string{"nested.array.aField"}, "something", []string{"10", "5"}},
		{"string arrays", []string{"list"}, "array", []string{"1"}},
		{"invalid field", []string{"invalid"}, "foo", []string{}},
		{"numbers as field values", []string{"aNumber"}, "1", []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.search(t, Options{Query: tt.query, Fields: Fields(tt.fields...)})
			assert.Equal(t, tt.want, idsOf(resp))
		})
	}
}

func TestSearch_Filter(t *testing.T) {
	t.Run("filtered documents are not indexed", func(t *testing.T) {
		h := newHarness(t, courtDocs())
		filter := &Filter{Name: "not-2", Match: func(doc *core.Document) (bool, error) {
			return doc.ID != "2", nil
		}}

		resp := h.search(t, Options{Query: "court", Fields: articleFields, Filter: filter})
		assert.Equal(t, []string{"3", "1"}, idsOf(resp))
		assert.Equal(t, 2, resp.TotalRows)
	})

	t.Run("filter errors are reported", func(t *testing.T) {
		h := newHarness(t, courtDocs())
		oups := errors.New("oups")
		filter := &Filter{Name: "fails-on-1", Match: func(doc *core.Document) (bool, error) {
			if doc.ID == "1" {
				return false, oups
			}
			return true, nil
		}}

		resp := h.search(t, Options{Query: "court", Fields: articleFields, Filter: filter})
		assert.Equal(t, []string{"2", "3"}, idsOf(resp))

		require.Len(t, h.mapErrors, 1)
		assert.Equal(t, "1", h.mapErrors[0].DocID)
		assert.ErrorIs(t, h.mapErrors[0], oups)
	})

	t.Run("filter panics are reported", func(t *testing.T) {
		h := newHarness(t, courtDocs())
		filter := &Filter{Name: "panics-on-3", Match: func(doc *core.Document) (bool, error) {
			if doc.ID == "3" {
				panic("unexpected shape")
			}
			return true, nil
		}}

		resp := h.search(t, Options{Query: "court", Fields: articleFields, Filter: filter})
		assert.Equal(t, []string{"2", "1"}, idsOf(resp))
		require.Len(t, h.mapErrors, 1)
		assert.Equal(t, "3", h.mapErrors[0].DocID)
	})

	t.Run("total rows", func(t *testing.T) {
		h := newHarness(t, categoryDocs())

		resp := h.search(t, Options{Query: "PL", Fields: Fields("category")})
		assert.Equal(t, 3, resp.TotalRows)

		filter := &Filter{Name: "not-static", Match: func(doc *core.Document) (bool, error) {
			return doc.Body["type"] != "static", nil
		}}
		resp = h.search(t, Options{Query: "PL", Fields: Fields("category"), Filter: filter, Limit: 1})
		assert.Equal(t, 2, resp.TotalRows)
		assert.Len(t, resp.Rows, 1)
	})
}

func TestSearch_HighResolution(t *testing.T) {
	h := newHarness(t, []*core.Document{
		doc("1", map[string]any{"title": "searching things"}),
		doc("2", map[string]any{"title": "seal pups"}),
	})

	resp := h.search(t, Options{Query: "sear", Fields: Fields("title"), HighResolution: true})
	assert.Equal(t, []string{"1"}, idsOf(resp))

	resp = h.search(t, Options{Query: "sear", Fields: Fields("title")})
	assert.Empty(t, resp.Rows, "standard resolution only matches whole tokens")
}

func TestSearch_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.searcher.Search(ctx, Options{Query: "x"})
	assert.ErrorIs(t, err, ErrFieldsRequired)

	_, err = h.searcher.Search(ctx, Options{Query: "x", Fields: Fields("title"), Language: "xx"})
	assert.ErrorIs(t, err, analysis.ErrUnsupportedLanguage)

	_, err = h.searcher.Search(ctx, Options{Query: "x", Fields: Fields("title"), Filter: &Filter{}})
	assert.ErrorIs(t, err, ErrFilterNameRequired)
}

type recordingMonitor struct {
	query    string
	index    string
	terms    []string
	df       map[string]int
	kept     int
	dropped  int
	scored   int
	response *Response
}

func (m *recordingMonitor) Start(query string, index string) { m.query, m.index = query, index }
func (m *recordingMonitor) AfterTokenize(terms []string)     { m.terms = terms }
func (m *recordingMonitor) AfterPostings(df map[string]int, _ int) {
	m.df = df
}
func (m *recordingMonitor) AfterMinShouldMatch(kept, dropped int) { m.kept, m.dropped = kept, dropped }
func (m *recordingMonitor) AfterScoring(hits []*Hit)              { m.scored = len(hits) }
func (m *recordingMonitor) Finish(response *Response)             { m.response = response }

func TestSearchWithMonitor(t *testing.T) {
	h := newHarness(t, courtDocs())
	monitor := &recordingMonitor{}

	opts := Options{Query: "clouded title title", Fields: articleFields}
	resp, err := h.searcher.SearchWithMonitor(context.Background(), opts, monitor)
	require.NoError(t, err)

	ix, err := ResolveIndex(opts)
	require.NoError(t, err)

	assert.Equal(t, "clouded title title", monitor.query)
	assert.Equal(t, ix.Name, monitor.index)
	assert.Equal(t, []string{"clouded", "title"}, monitor.terms)
	assert.Equal(t, map[string]int{"clouded": 1, "title": 2}, monitor.df)
	assert.Equal(t, 1, monitor.kept)
	assert.Equal(t, 1, monitor.dropped)
	assert.Equal(t, 1, monitor.scored)
	assert.Same(t, resp, monitor.response)
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls int
	hits  int
	index string
}

func (r *recordingRecorder) SearchCompleted(index string, _ time.Duration, hits int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.hits = hits
	r.index = index
}

func TestSearch_Recorder(t *testing.T) {
	recorder := &recordingRecorder{}
	h := newHarness(t, courtDocs(), WithRecorder(recorder))

	h.search(t, Options{Query: "court", Fields: articleFields})
	h.search(t, Options{Fields: articleFields, Build: true})

	assert.Equal(t, 1, recorder.calls, "build requests are not searches")
	assert.Equal(t, 3, recorder.hits)
	assert.True(t, strings.HasPrefix(recorder.index, IndexPrefix))
}

func TestResponse_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(emptyResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_rows":0,"rows":[]}`, string(data))

	data, err = json.Marshal(&Response{TotalRows: 3, Rows: []*Hit{{ID: "a", Score: 0.5}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_rows":3,"rows":[{"id":"a","score":0.5}]}`, string(data))
}

type countingStores struct {
	storage.IndexStoreProvider
	counts atomic.Int64
}

func (p *countingStores) OpenIndexStore(ctx context.Context, name string) (storage.IndexStore, error) {
	store, err := p.IndexStoreProvider.OpenIndexStore(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingStore{IndexStore: store, counts: &p.counts}, nil
}

type countingStore struct {
	storage.IndexStore
	counts *atomic.Int64
}

func (s *countingStore) Count(ctx context.Context) (int, error) {
	s.counts.Add(1)
	return s.IndexStore.Count(ctx)
}

func TestSearcher_DoesNotScanIndex(t *testing.T) {
	docs, indexes, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	stores := &countingStores{IndexStoreProvider: indexes}
	engine, err := mapreduce.NewEngine(docs, stores)
	require.NoError(t, err)
	defer engine.Close()
	searcher, err := NewSearcher(engine, docs)
	require.NoError(t, err)

	_, err = docs.BulkDocs(ctx, courtDocs()...)
	require.NoError(t, err)

	resp, err := searcher.Search(ctx, Options{Query: "court", Fields: Fields("title", "text")})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalRows)
	assert.Zero(t, stores.counts.Load())
}
