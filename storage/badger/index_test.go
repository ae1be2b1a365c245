package badger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(recs []*storage.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, string(r.Key))
	}
	return out
}

func TestIndexStore_GetAndTombstones(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	store, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)
	assert.Equal(t, "view", store.Name())

	require.NoError(t, store.BulkWrite(ctx,
		&storage.Record{Key: []byte("a"), Value: []byte("1")},
		&storage.Record{Key: []byte("b"), Value: []byte("2")},
	))

	rec, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), rec.Value)

	require.NoError(t, store.BulkWrite(ctx, &storage.Record{Key: []byte("a"), Deleted: true}))

	_, err = store.Get(ctx, []byte("a"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	many, err := store.GetMany(ctx, []byte("a"), []byte("b"), []byte("zz"))
	require.NoError(t, err)
	require.Len(t, many, 3)
	assert.Nil(t, many[0])
	assert.Equal(t, []byte("2"), many[1].Value)
	assert.Nil(t, many[2])
}

func TestIndexStore_LocalRecords(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	store, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)

	_, err = store.GetLocal(ctx, []byte("_local/lastSeq"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.BulkWrite(ctx,
		&storage.Record{Key: []byte("_local/lastSeq"), Value: []byte{7}, Local: true},
		&storage.Record{Key: []byte("row"), Value: []byte("v")},
	))

	local, err := store.GetLocal(ctx, []byte("_local/lastSeq"))
	require.NoError(t, err)
	assert.True(t, local.Local)
	assert.Equal(t, []byte{7}, local.Value)

	_, err = store.Get(ctx, []byte("_local/lastSeq"))
	assert.ErrorIs(t, err, storage.ErrNotFound, "local records live in their own key space")

	all, err := store.Range(ctx, storage.KeyRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"row"}, keysOf(all))
}

func TestIndexStore_Range(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	store, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)

	var recs []*storage.Record
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		recs = append(recs, &storage.Record{Key: []byte(k), Value: []byte(k)})
	}
	require.NoError(t, store.BulkWrite(ctx, recs...))
	require.NoError(t, store.BulkWrite(ctx, &storage.Record{Key: []byte("c"), Deleted: true}))

	tests := []struct {
		name string
		r    storage.KeyRange
		want []string
	}{
		{"all", storage.KeyRange{}, []string{"a", "b", "d", "e"}},
		{"bounded", storage.KeyRange{Start: []byte("b"), End: []byte("e")}, []string{"b", "d"}},
		{"descending", storage.KeyRange{Descending: true}, []string{"e", "d", "b", "a"}},
		{"descending bounded", storage.KeyRange{Start: []byte("b"), End: []byte("e"), Descending: true}, []string{"d", "b"}},
		{"skip and limit", storage.KeyRange{Skip: 1, Limit: 2}, []string{"b", "d"}},
		{"empty range", storage.KeyRange{Start: []byte("d"), End: []byte("b")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Range(ctx, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(got))
		})
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	_, err = store.Range(ctx, storage.KeyRange{Skip: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndexStore_Isolation(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	one, err := indexes.OpenIndexStore(ctx, "search-1")
	require.NoError(t, err)
	two, err := indexes.OpenIndexStore(ctx, "search-10")
	require.NoError(t, err)

	require.NoError(t, one.BulkWrite(ctx, &storage.Record{Key: []byte("k"), Value: []byte("one")}))
	require.NoError(t, two.BulkWrite(ctx, &storage.Record{Key: []byte("k"), Value: []byte("two")}))

	got, err := one.Range(ctx, storage.KeyRange{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("one"), got[0].Value)

	names, err := indexes.DependentStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"search-1", "search-10"}, names)
}

func TestIndexStore_Destroy(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	store, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)
	require.NoError(t, store.BulkWrite(ctx,
		&storage.Record{Key: []byte("k"), Value: []byte("v")},
		&storage.Record{Key: []byte("_local/lastSeq"), Value: []byte{1}, Local: true},
	))

	require.NoError(t, store.Destroy(ctx))
	require.NoError(t, store.Destroy(ctx), "destroy is idempotent")

	_, err = store.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, storage.ErrStoreDestroyed)

	names, err := indexes.DependentStores(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	fresh, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)
	_, err = fresh.GetLocal(ctx, []byte("_local/lastSeq"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexStore_BulkWriteTooLarge(t *testing.T) {
	_, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	store, err := indexes.OpenIndexStore(ctx, "view")
	require.NoError(t, err)

	records := make([]*storage.Record, 200000)
	for i := range records {
		records[i] = &storage.Record{Key: []byte(fmt.Sprintf("k%07d", i)), Value: []byte("v")}
	}
	err = store.BulkWrite(ctx, records...)
	assert.ErrorIs(t, err, storage.ErrBatchTooLarge)

	// nothing of the failed batch is visible
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexStores_DestroyDoesNotBlockWrites(t *testing.T) {
	docs, indexes := newTestDocumentStore(t)
	ctx := context.Background()

	other, err := indexes.OpenIndexStore(ctx, "other")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		writes   atomic.Int64
		failures atomic.Int64
		firstErr atomic.Value
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; !stop.Load(); i++ {
			writes.Add(1)
			_, err := docs.BulkDocs(ctx, &core.Document{ID: fmt.Sprintf("doc-%d", i), Body: map[string]any{"n": i}})
			if err == nil {
				err = other.BulkWrite(ctx, &storage.Record{Key: []byte(fmt.Sprintf("k%d", i)), Value: []byte("v")})
			}
			if err != nil {
				failures.Add(1)
				firstErr.CompareAndSwap(nil, err.Error())
			}
		}
	}()

	for round := 0; round < 30; round++ {
		store, err := indexes.OpenIndexStore(ctx, "doomed")
		require.NoError(t, err)
		records := make([]*storage.Record, 500)
		for i := range records {
			records[i] = &storage.Record{Key: []byte(fmt.Sprintf("k%03d", i)), Value: []byte("v")}
		}
		require.NoError(t, store.BulkWrite(ctx, records...))
		require.NoError(t, store.Destroy(ctx))
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, failures.Load(), "writes failed: %v", firstErr.Load())
	assert.Positive(t, writes.Load())

	names, err := indexes.DependentStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)

	reopened, err := indexes.OpenIndexStore(ctx, "doomed")
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
