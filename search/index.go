package search

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/quicksearch/analysis"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/fields"
	"github.com/poiesic/quicksearch/mapreduce"
)

// View row key prefixes.
const (
	PostingPrefix = "a"
	NormPrefix    = "b"
)

// IndexPrefix starts the name of every search index.
const IndexPrefix = "search-"

// Index is a resolved index definition.
type Index struct {
	Name           string
	Fields         []fields.Spec // sorted by path; positions are field indices
	Language       string
	HighResolution bool
	Filter         *Filter

	analyzer analysis.Analyzer
}

type identity struct {
	Fields     []string `json:"fields"`
	Filter     string   `json:"filter,omitempty"`
	Language   string   `json:"language"`
	Resolution string   `json:"resolution,omitempty"`
}

// ResolveIndex validates the index-shaping options and computes the index
// identity. Boosts and field order do not affect the identity.
func ResolveIndex(opts Options) (*Index, error) {
	if len(opts.Fields) == 0 {
		return nil, ErrFieldsRequired
	}
	if opts.Filter != nil && opts.Filter.Name == "" {
		return nil, ErrFilterNameRequired
	}

	language := opts.Language
	if language == "" {
		language = analysis.DefaultLanguage
	}
	analyzer, err := analysis.Lookup(language, opts.HighResolution)
	if err != nil {
		return nil, err
	}

	specs := make([]fields.Spec, 0, len(opts.Fields))
	seen := make(map[string]bool, len(opts.Fields))
	for _, spec := range opts.Fields {
		if spec.Path == "" {
			return nil, fmt.Errorf("%w: empty field path", ErrFieldsRequired)
		}
		if seen[spec.Path] {
			continue
		}
		seen[spec.Path] = true
		boost := spec.Boost
		if boost == 0 {
			boost = 1
		}
		specs = append(specs, fields.Parse(spec.Path, boost))
	}
	specs = fields.Sort(specs)

	id := identity{Language: language}
	for _, spec := range specs {
		id.Fields = append(id.Fields, spec.Path)
	}
	if opts.Filter != nil {
		id.Filter = opts.Filter.Name
	}
	if opts.HighResolution {
		id.Resolution = "high"
	}
	data, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	h, _ := blake2b.New(16, nil)
	h.Write(data)

	return &Index{
		Name:           IndexPrefix + hex.EncodeToString(h.Sum(nil)),
		Fields:         specs,
		Language:       language,
		HighResolution: opts.HighResolution,
		Filter:         opts.Filter,
		analyzer:       analyzer,
	}, nil
}

// Definition returns the view backing the index.
func (ix *Index) Definition() mapreduce.Definition {
	return mapreduce.Definition{Name: ix.Name, Map: ix.mapDocument}
}

// Tokenize splits text the way the index does.
func (ix *Index) Tokenize(text string) []string {
	return ix.analyzer.Tokenize(text)
}

// mapDocument emits a posting per token occurrence and one norm row.
// Filtered documents emit nothing.
func (ix *Index) mapDocument(doc *core.Document, emit mapreduce.Emitter) error {
	if ix.Filter != nil {
		ok, err := ix.Filter.Match(doc)
		if err != nil {
			return fmt.Errorf("filter %s: %w", ix.Filter.Name, err)
		}
		if !ok {
			return nil
		}
	}

	norms := make([]float64, len(ix.Fields))
	for i, spec := range ix.Fields {
		text, ok := fields.Extract(spec, doc.Body)
		if !ok {
			continue
		}
		// A single field needs no field index.
		value := core.None()
		if len(ix.Fields) > 1 {
			value = core.Number(float64(i))
		}
		tokens := ix.analyzer.Tokenize(text)
		for _, token := range tokens {
			emit(PostingPrefix+token, value)
		}
		norms[i] = math.Sqrt(float64(len(tokens)))
	}
	emit(NormPrefix+doc.ID, core.Numbers(norms...))
	return nil
}
