package search

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/fields"
	"github.com/poiesic/quicksearch/mapreduce"
)

// fieldTerms holds, per field index, how often each query term occurs.
type fieldTerms []map[string]int

// matchedTerms returns the distinct query terms the document contains.
func (f fieldTerms) matchedTerms() int {
	seen := make(map[string]struct{})
	for _, terms := range f {
		for term := range terms {
			seen[term] = struct{}{}
		}
	}
	return len(seen)
}

// collectPostings tallies posting rows into document frequencies and
// per-document term counts. Every posting counts toward its term's df.
func collectPostings(rows []mapreduce.Row, numFields int) (map[string]int, map[string]fieldTerms) {
	df := make(map[string]int)
	docs := make(map[string]fieldTerms)
	for _, row := range rows {
		term := strings.TrimPrefix(row.Key, PostingPrefix)
		field := 0
		if row.Value.Kind == core.KindNumber {
			field = int(row.Value.Number)
		}
		if field < 0 || field >= numFields {
			continue
		}

		df[term]++

		terms, ok := docs[row.ID]
		if !ok {
			terms = make(fieldTerms, numFields)
			for i := range terms {
				terms[i] = make(map[string]int)
			}
			docs[row.ID] = terms
		}
		terms[field][term]++
	}
	return df, docs
}

// applyMinShouldMatch drops documents matching too small a share of the
// query terms. The ratio is floored to two decimals before comparing.
// It only applies to multi-term queries.
func applyMinShouldMatch(docs map[string]fieldTerms, numTerms int, mm float64) int {
	if numTerms <= 1 {
		return 0
	}
	dropped := 0
	for id, terms := range docs {
		ratio := float64(terms.matchedTerms()) / float64(numTerms)
		if math.Floor(ratio*100)/100 < mm {
			delete(docs, id)
			dropped++
		}
	}
	return dropped
}

// scoreDocuments computes dismax TF-IDF scores and returns hits ordered by
// descending score, then by ID.
func scoreDocuments(terms []string, df map[string]int, docs map[string]fieldTerms, norms map[string][]float64, specs []fields.Spec) []*Hit {
	hits := make([]*Hit, 0, len(docs))
	for id, counts := range docs {
		docNorms, ok := norms[id]
		if !ok {
			continue
		}
		best := -1.0
		for _, term := range terms {
			termDF := float64(df[term])
			score := 0.0
			for field, termCounts := range counts {
				tf, ok := termCounts[term]
				if !ok || field >= len(docNorms) {
					continue
				}
				docScore := float64(tf) / termDF
				queryScore := 1 / termDF
				score += docScore * queryScore * specs[field].Boost / docNorms[field]
			}
			if score > best {
				best = score
			}
		}
		hits = append(hits, &Hit{ID: id, Score: best})
	}

	slices.SortFunc(hits, func(a, b *Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return hits
}

// paginate applies skip, then limit when positive.
func paginate(hits []*Hit, skip, limit int) []*Hit {
	if skip >= len(hits) {
		return []*Hit{}
	}
	hits = hits[skip:]
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}
