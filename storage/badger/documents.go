package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend *Backend
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(backend *Backend) *DocumentStore {
	return &DocumentStore{backend: backend}
}

// BulkDocs writes all documents in a single transaction. A stale or missing
// revision on any document fails the whole call with storage.ErrConflict.
func (s *DocumentStore) BulkDocs(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.backend.writeMu.Lock()
	defer s.backend.writeMu.Unlock()

	stored := make([]*core.Document, 0, len(docs))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		seq, err := readUpdateSeq(tx)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			existing, err := readDocument(tx, doc.ID)
			if err != nil {
				return err
			}

			generation := 1
			switch {
			case existing == nil:
				if doc.Rev != "" {
					return fmt.Errorf("%w: %s does not exist", storage.ErrConflict, doc.ID)
				}
				if doc.Deleted {
					return fmt.Errorf("%w: %s", storage.ErrNotFound, doc.ID)
				}
			case existing.Deleted && doc.Rev == "":
				if doc.Deleted {
					return fmt.Errorf("%w: %s", storage.ErrNotFound, doc.ID)
				}
				generation, _, _ = core.ParseRevision(existing.Rev)
				generation++
			case existing.Rev != doc.Rev:
				return fmt.Errorf("%w: %s", storage.ErrConflict, doc.ID)
			default:
				generation, _, _ = core.ParseRevision(existing.Rev)
				generation++
			}

			if existing != nil {
				if err := tx.Delete(makeSequenceKey(existing.Seq)); err != nil {
					return err
				}
			}

			body := maps.Clone(doc.Body)
			if doc.Deleted {
				body = nil
			}
			rev, err := core.NewRevision(generation, body, doc.Deleted)
			if err != nil {
				return err
			}
			seq++
			out := &core.Document{ID: doc.ID, Rev: rev, Seq: seq, Deleted: doc.Deleted, Body: body}

			data, err := storage.MarshalDocument(out)
			if err != nil {
				return err
			}
			if err := tx.Set(makeDocumentKey(doc.ID), data); err != nil {
				return err
			}
			if err := tx.Set(makeSequenceKey(seq), []byte(doc.ID)); err != nil {
				return err
			}
			stored = append(stored, out)
		}

		if err := tx.Set([]byte(updateSeqKey), storage.MarshalCursor(seq)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Get retrieves a live document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return doc, nil
}

// GetMany retrieves live documents, keeping nil slots for missing ones.
func (s *DocumentStore) GetMany(ctx context.Context, ids ...string) ([]*core.Document, error) {
	docs := make([]*core.Document, len(ids))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc != nil && !doc.Deleted {
				docs[i] = doc
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// AllDocs lists live documents by ID. StartKey and EndKey are inclusive and
// follow the iteration direction.
func (s *DocumentStore) AllDocs(ctx context.Context, opts storage.AllDocsOptions) ([]*core.Document, error) {
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var docs []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(documentPrefix)
		iterOpts.Reverse = opts.Descending
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		start := makeDocumentKey(opts.StartKey)
		if opts.Descending && opts.StartKey == "" {
			start = prefixEnd([]byte(documentPrefix))
		}

		skipped := 0
		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(iter.Item().Key()[len(documentPrefix):])
			if opts.EndKey != "" {
				if !opts.Descending && id > opts.EndKey {
					break
				}
				if opts.Descending && id < opts.EndKey {
					break
				}
			}

			doc, err := decodeDocument(iter.Item())
			if err != nil {
				return err
			}
			if doc.Deleted {
				continue
			}
			if skipped < opts.Skip {
				skipped++
				continue
			}
			docs = append(docs, doc)
			if opts.Limit > 0 && len(docs) >= opts.Limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Changes reads the change feed after since.
func (s *DocumentStore) Changes(ctx context.Context, since uint64, limit int) ([]*core.Change, error) {
	var changes []*core.Change
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(sequencePrefix)
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Seek(makeSequenceKey(since + 1)); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			seq := parseSequenceKey(item.Key())
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			doc, err := readDocument(tx, string(id))
			if err != nil {
				return err
			}
			if doc == nil || doc.Seq != seq {
				continue
			}

			changes = append(changes, &core.Change{
				Seq:     seq,
				ID:      doc.ID,
				Changes: []string{doc.Rev},
				Deleted: doc.Deleted,
				Doc:     doc,
			})
			if limit > 0 && len(changes) >= limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// UpdateSeq returns the sequence of the last committed write.
func (s *DocumentStore) UpdateSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		seq, err = readUpdateSeq(tx)
		return err
	}, false)
	return seq, err
}

// Destroy removes every document, the change feed and every dependent
// index store.
func (s *DocumentStore) Destroy(ctx context.Context) error {
	s.backend.writeMu.Lock()
	defer s.backend.writeMu.Unlock()

	stores := NewIndexStores(s.backend)
	names, err := stores.DependentStores(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := stores.DestroyIndexStore(ctx, name); err != nil {
			return fmt.Errorf("failed to destroy dependent store %s: %w", name, err)
		}
	}

	if err := s.backend.DeletePrefix(ctx,
		[]byte(documentPrefix),
		[]byte(sequencePrefix),
		[]byte(updateSeqKey),
	); err != nil {
		return err
	}
	s.backend.logger.Info("destroyed collection", "dependents", len(names))
	return nil
}

// readDocument loads a document, tombstones included.
// Returns nil, nil if the document has never been written.
func readDocument(tx *badger.Txn, id string) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeDocument(item)
}

func decodeDocument(item *badger.Item) (*core.Document, error) {
	var doc *core.Document
	err := item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(bytes.Clone(val))
		return err
	})
	return doc, err
}

func readUpdateSeq(tx *badger.Txn) (uint64, error) {
	item, err := tx.Get([]byte(updateSeqKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		var err error
		seq, err = storage.UnmarshalCursor(val)
		return err
	})
	return seq, err
}
