package storage

import (
	"context"

	"github.com/poiesic/quicksearch/core"
)

// DocumentStore holds the source collection and its change feed.
type DocumentStore interface {
	// BulkDocs atomically writes documents. New documents must carry an
	// empty Rev; updates and deletions must carry the current Rev.
	// Returns the stored documents with their assigned Rev and Seq.
	BulkDocs(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// Get returns a live document by ID. Returns ErrNotFound if the
	// document does not exist or was deleted.
	Get(ctx context.Context, id string) (*core.Document, error)

	// GetMany returns documents in the order of ids, with nil entries
	// for missing or deleted documents.
	GetMany(ctx context.Context, ids ...string) ([]*core.Document, error)

	// AllDocs lists live documents ordered by ID.
	AllDocs(ctx context.Context, opts AllDocsOptions) ([]*core.Document, error)

	// Changes returns up to limit changes with a sequence greater than
	// since, in sequence order. Each document appears once, at its latest
	// sequence, with its body included.
	Changes(ctx context.Context, since uint64, limit int) ([]*core.Change, error)

	// UpdateSeq returns the sequence of the most recent write.
	UpdateSeq(ctx context.Context) (uint64, error)
}

// AllDocsOptions bounds an AllDocs listing. Empty keys are unbounded.
type AllDocsOptions struct {
	StartKey   string
	EndKey     string
	Descending bool
	Skip       int
	Limit      int // 0 means no limit
}

// Record is a single entry of an index store. Local records hold engine
// bookkeeping and live in a key space that Range never visits.
type Record struct {
	Key     []byte
	Value   []byte
	Deleted bool
	Local   bool
}

// KeyRange selects records with Start <= key < End. A nil bound is open.
// Descending reverses iteration order; Skip and Limit apply after ordering.
type KeyRange struct {
	Start      []byte
	End        []byte
	Descending bool
	Skip       int
	Limit      int // 0 means no limit
}

// IndexStore is a key-ordered auxiliary store owned by one view.
type IndexStore interface {
	// Name returns the store's name.
	Name() string

	// Get returns a live record. Returns ErrNotFound for missing or
	// soft-deleted records.
	Get(ctx context.Context, key []byte) (*Record, error)

	// GetLocal returns a local record. Returns ErrNotFound if absent.
	GetLocal(ctx context.Context, key []byte) (*Record, error)

	// GetMany returns live records in the order of keys, with nil entries
	// for missing or soft-deleted records.
	GetMany(ctx context.Context, keys ...[]byte) ([]*Record, error)

	// BulkWrite writes all records in one atomic transaction. Records
	// with Deleted set are persisted as tombstones.
	BulkWrite(ctx context.Context, records ...*Record) error

	// Range returns live, non-local records within the range.
	Range(ctx context.Context, r KeyRange) ([]*Record, error)

	// Count returns the number of live, non-local records.
	Count(ctx context.Context) (int, error)

	// Destroy removes every record of the store, including local ones.
	Destroy(ctx context.Context) error
}

// IndexStoreProvider creates index stores that depend on a source collection.
type IndexStoreProvider interface {
	// OpenIndexStore returns the named store, registering it as a
	// dependent of the collection on first use.
	OpenIndexStore(ctx context.Context, name string) (IndexStore, error)

	// DestroyIndexStore removes the named store and its registration.
	DestroyIndexStore(ctx context.Context, name string) error

	// DependentStores lists the registered store names.
	DependentStores(ctx context.Context) ([]string, error)
}
