package search

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/fields"
)

// Default highlight markers.
const (
	DefaultHighlightPre  = "<strong>"
	DefaultHighlightPost = "</strong>"
)

// Filter restricts the indexed documents. Documents for which Match returns
// false or an error are left out of the index. Name identifies the filter in
// the index identity, so two filters with the same name must agree.
type Filter struct {
	Name  string
	Match func(doc *core.Document) (bool, error)
}

// Options describes a search request.
type Options struct {
	Query  string
	Fields []fields.Spec
	// MinShouldMatch is the share of distinct query terms a document must
	// contain, as a percentage such as "75%". Default is "100%".
	MinShouldMatch string
	Filter         *Filter

	Highlighting  bool
	HighlightPre  string
	HighlightPost string
	IncludeDocs   bool

	Stale core.StaleMode
	Skip  int
	Limit int // 0 means all results

	// Build brings the index up to date without searching.
	Build bool
	// Destroy removes the index without searching.
	Destroy bool

	Language       string
	HighResolution bool
}

// Fields returns specs for the named fields with a boost of 1.
func Fields(names ...string) []fields.Spec {
	specs := make([]fields.Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, fields.Parse(name, 1))
	}
	return specs
}

// BoostedFields returns specs for a field name to boost map.
func BoostedFields(boosts map[string]float64) []fields.Spec {
	specs := make([]fields.Spec, 0, len(boosts))
	for _, name := range slices.Sorted(maps.Keys(boosts)) {
		specs = append(specs, fields.Parse(name, boosts[name]))
	}
	return specs
}

// parseMinShouldMatch converts a percentage into a ratio. Empty means 1.
func parseMinShouldMatch(mm string) (float64, error) {
	mm = strings.TrimSpace(mm)
	if mm == "" {
		return 1, nil
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(mm, "%")), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMinShouldMatch, mm)
	}
	return pct / 100, nil
}

func (o Options) markers() (string, string) {
	pre, post := o.HighlightPre, o.HighlightPost
	if pre == "" {
		pre = DefaultHighlightPre
	}
	if post == "" {
		post = DefaultHighlightPost
	}
	return pre, post
}
