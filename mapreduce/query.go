package mapreduce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
)

// QueryOptions selects and shapes view rows.
type QueryOptions struct {
	// Key selects rows emitted under exactly this key.
	Key *string
	// Keys selects rows for each key in turn. A non-nil empty slice
	// selects nothing.
	Keys []string
	// StartKey and EndKey bound the key range. With Descending set,
	// StartKey is the upper bound.
	StartKey *string
	EndKey   *string
	// ExclusiveEnd leaves rows emitted under EndKey out.
	ExclusiveEnd bool
	Descending   bool
	Skip         int
	Limit        int // 0 means no limit
	IncludeDocs  bool
	// SkipReduce returns map rows for a view with a reducer.
	SkipReduce bool
	// Group reduces each distinct key separately.
	Group bool
	// SkipTotalRows leaves Result.TotalRows at zero instead of counting
	// every row of the view.
	SkipTotalRows bool
	Stale core.StaleMode
}

// StringPtr returns a pointer to s, for building QueryOptions.
func StringPtr(s string) *string { return &s }

func (o QueryOptions) shouldReduce(def Definition) bool {
	return def.Reduce != "" && !o.SkipReduce
}

func (o QueryOptions) validate(def Definition) error {
	if o.Skip < 0 {
		return queryParseError("invalid value for positive integer: %d", o.Skip)
	}
	if o.Limit < 0 {
		return queryParseError("invalid value for positive integer: %d", o.Limit)
	}
	if o.shouldReduce(def) {
		if o.IncludeDocs {
			return queryParseError("include_docs is invalid for reduce")
		}
		if len(o.Keys) > 1 && !o.Group {
			return queryParseError("multi-key fetches for reduce views must use group")
		}
	}
	return nil
}

// Row is a map row.
type Row struct {
	ID    string         `json:"id"`
	Key   string         `json:"key"`
	Value core.Value     `json:"value"`
	Doc   *core.Document `json:"doc,omitempty"`
}

// ReducedRow is a reduced group. Key is nil when rows were not grouped.
type ReducedRow struct {
	Key   *string `json:"key"`
	Value any     `json:"value"`
}

// Result is the outcome of a view query. Reduced queries fill Reduced and
// leave TotalRows and Rows empty.
type Result struct {
	TotalRows int
	Offset    int
	Rows      []Row
	Reduced   []ReducedRow
	reduced   bool
}

// IsReduced reports whether the result holds reduced groups.
func (r *Result) IsReduced() bool { return r.reduced }

func (r *Result) MarshalJSON() ([]byte, error) {
	if r.reduced {
		rows := r.Reduced
		if rows == nil {
			rows = []ReducedRow{}
		}
		return json.Marshal(struct {
			Rows []ReducedRow `json:"rows"`
		}{rows})
	}
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(struct {
		TotalRows int   `json:"total_rows"`
		Offset    int   `json:"offset"`
		Rows      []Row `json:"rows"`
	}{r.TotalRows, r.Offset, rows})
}

// query reads rows from the view store. Callers must hold the view's queue
// slot or accept staleness.
func (e *Engine) query(ctx context.Context, v *View, opts QueryOptions) (*Result, error) {
	reduce, err := lookupReducer(v.def.Reduce)
	if err != nil {
		return nil, err
	}
	shouldReduce := reduce != nil && !opts.SkipReduce

	var rows []Row
	switch {
	case opts.Keys != nil:
		for _, key := range opts.Keys {
			start, end := rowKeyRange(key)
			page, err := e.fetchRows(ctx, v, storage.KeyRange{Start: start, End: end})
			if err != nil {
				return nil, err
			}
			rows = append(rows, page...)
		}
		if !shouldReduce {
			rows = sliceRows(rows, opts.Skip, opts.Limit)
		}
	default:
		r, ok := opts.keyRange()
		if ok {
			if !shouldReduce {
				r.Skip, r.Limit = opts.Skip, opts.Limit
			}
			if rows, err = e.fetchRows(ctx, v, r); err != nil {
				return nil, err
			}
		}
	}

	if shouldReduce {
		groups, err := reduceRows(rows, reduce, opts.Group)
		if err != nil {
			return nil, err
		}
		return &Result{Reduced: sliceRows(groups, opts.Skip, opts.Limit), reduced: true}, nil
	}

	total := 0
	if !opts.SkipTotalRows {
		if total, err = v.store.Count(ctx); err != nil {
			return nil, fmt.Errorf("failed to count rows of view %s: %w", v.Name(), err)
		}
	}
	if opts.IncludeDocs {
		if err := e.attachDocs(ctx, rows); err != nil {
			return nil, err
		}
	}
	return &Result{TotalRows: total, Offset: opts.Skip, Rows: rows}, nil
}

// keyRange converts key options into a byte range. It returns false when
// the bounds exclude every row.
func (o QueryOptions) keyRange() (storage.KeyRange, bool) {
	r := storage.KeyRange{Descending: o.Descending}
	switch {
	case o.Key != nil:
		r.Start, r.End = rowKeyRange(*o.Key)
	case o.Descending:
		if o.StartKey != nil {
			r.End = keyEnd(*o.StartKey)
		}
		if o.EndKey != nil {
			if o.ExclusiveEnd {
				r.Start = keyEnd(*o.EndKey)
			} else {
				r.Start = keyStart(*o.EndKey)
			}
		}
	default:
		if o.StartKey != nil {
			r.Start = keyStart(*o.StartKey)
		}
		if o.EndKey != nil {
			if o.ExclusiveEnd {
				r.End = keyStart(*o.EndKey)
			} else {
				r.End = keyEnd(*o.EndKey)
			}
		}
	}
	if r.Start != nil && r.End != nil && bytes.Compare(r.Start, r.End) >= 0 {
		return r, false
	}
	return r, true
}

func (e *Engine) fetchRows(ctx context.Context, v *View, r storage.KeyRange) ([]Row, error) {
	recs, err := v.store.Range(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of view %s: %w", v.Name(), err)
	}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		kv, err := storage.UnmarshalKV(rec.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ID: kv.DocID, Key: kv.Key, Value: kv.Value})
	}
	return rows, nil
}

func (e *Engine) attachDocs(ctx context.Context, rows []Row) error {
	var ids []string
	seen := make(map[string]int)
	for _, row := range rows {
		if _, ok := seen[row.ID]; !ok {
			seen[row.ID] = len(ids)
			ids = append(ids, row.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	docs, err := e.docs.GetMany(ctx, ids...)
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}
	for i := range rows {
		rows[i].Doc = docs[seen[rows[i].ID]]
	}
	return nil
}

func reduceRows(rows []Row, reduce reducer, group bool) ([]ReducedRow, error) {
	type bucket struct {
		key    string
		values []core.Value
	}
	var buckets []*bucket
	for _, row := range rows {
		if n := len(buckets); n > 0 && (!group || buckets[n-1].key == row.Key) {
			buckets[n-1].values = append(buckets[n-1].values, row.Value)
			continue
		}
		buckets = append(buckets, &bucket{key: row.Key, values: []core.Value{row.Value}})
	}

	out := make([]ReducedRow, 0, len(buckets))
	for _, b := range buckets {
		value, err := reduce(b.values)
		if err != nil {
			return nil, err
		}
		rr := ReducedRow{Value: value}
		if group {
			rr.Key = StringPtr(b.key)
		}
		out = append(out, rr)
	}
	return out, nil
}

// sliceRows applies skip and limit to an in-memory row set.
func sliceRows[T any](rows []T, skip, limit int) []T {
	if skip >= len(rows) {
		return rows[:0]
	}
	rows = rows[skip:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
