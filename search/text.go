package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPatternCacheSize is the number of compiled highlight patterns kept.
const DefaultPatternCacheSize = 256

// highlighter wraps query terms found in field text with markers. A term
// matches case-insensitively together with any trailing letters.
type highlighter struct {
	patterns *lru.Cache[string, *regexp.Regexp]
}

func newHighlighter(size int) (*highlighter, error) {
	if size < 1 {
		size = DefaultPatternCacheSize
	}
	patterns, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, err
	}
	return &highlighter{patterns: patterns}, nil
}

// pattern returns one alternation over terms, longest terms first so the
// widest match wins.
func (h *highlighter) pattern(terms []string) *regexp.Regexp {
	sorted := slices.Clone(terms)
	slices.SortFunc(sorted, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	key := strings.Join(sorted, "\x00")
	if re, ok := h.patterns.Get(key); ok {
		return re
	}

	alternatives := make([]string, len(sorted))
	for i, term := range sorted {
		alternatives[i] = regexp.QuoteMeta(term) + "[a-z]*"
	}
	re := regexp.MustCompile("(?i)(?:" + strings.Join(alternatives, "|") + ")")
	h.patterns.Add(key, re)
	return re
}

func (h *highlighter) highlight(text string, terms []string, pre, post string) string {
	if len(terms) == 0 || text == "" {
		return text
	}
	return h.pattern(terms).ReplaceAllStringFunc(text, func(match string) string {
		return pre + match + post
	})
}
