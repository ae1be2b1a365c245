package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quicksearch/storage"
)

// IndexStores implements storage.IndexStoreProvider for BadgerDB. Every
// index store lives under its own key prefix of the shared backend.
type IndexStores struct {
	backend *Backend
}

var _ storage.IndexStoreProvider = (*IndexStores)(nil)

// NewIndexStores creates a new IndexStores provider.
func NewIndexStores(backend *Backend) *IndexStores {
	return &IndexStores{backend: backend}
}

// OpenIndexStore returns the named store and registers it as a dependent.
func (p *IndexStores) OpenIndexStore(ctx context.Context, name string) (storage.IndexStore, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDependentKey(name), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to register index store %s: %w", name, err)
	}
	return &indexStore{backend: p.backend, name: name}, nil
}

// DestroyIndexStore removes the registration of the named store, then
// deletes its keys.
func (p *IndexStores) DestroyIndexStore(ctx context.Context, name string) error {
	if err := validateStoreName(name); err != nil {
		return err
	}
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeDependentKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("failed to unregister index store %s: %w", name, err)
	}
	return p.backend.DeletePrefix(ctx, makeIndexPrefix(name))
}

// DependentStores lists registered index store names in key order.
func (p *IndexStores) DependentStores(ctx context.Context) ([]string, error) {
	var names []string
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(dependentPrefix)
		iterOpts.PrefetchValues = false
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			names = append(names, string(iter.Item().Key()[len(dependentPrefix):]))
		}
		return nil
	}, false)
	return names, err
}

// indexStore is a single namespaced index store.
type indexStore struct {
	backend   *Backend
	name      string
	destroyed atomic.Bool
}

var _ storage.IndexStore = (*indexStore)(nil)

func (s *indexStore) Name() string {
	return s.name
}

func (s *indexStore) check() error {
	if s.destroyed.Load() {
		return fmt.Errorf("%w: %s", storage.ErrStoreDestroyed, s.name)
	}
	return nil
}

func (s *indexStore) Get(ctx context.Context, key []byte) (*storage.Record, error) {
	return s.get(ctx, indexRecordSpace, key)
}

func (s *indexStore) GetLocal(ctx context.Context, key []byte) (*storage.Record, error) {
	return s.get(ctx, indexLocalSpace, key)
}

func (s *indexStore) get(ctx context.Context, space byte, key []byte) (*storage.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rec *storage.Record
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		rec, err = readRecord(tx, s.name, space, key)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (s *indexStore) GetMany(ctx context.Context, keys ...[]byte) ([]*storage.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	recs := make([]*storage.Record, len(keys))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for i, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := readRecord(tx, s.name, indexRecordSpace, key)
			if err != nil {
				return err
			}
			recs[i] = rec
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *indexStore) BulkWrite(ctx context.Context, records ...*storage.Record) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, rec := range records {
			if rec.Local {
				key := makeIndexKey(s.name, indexLocalSpace, rec.Key)
				if rec.Deleted {
					if err := tx.Delete(key); err != nil {
						return err
					}
					continue
				}
				if err := tx.Set(key, storage.MarshalEntry(rec.Value, false)); err != nil {
					return err
				}
				continue
			}
			key := makeIndexKey(s.name, indexRecordSpace, rec.Key)
			if err := tx.Set(key, storage.MarshalEntry(rec.Value, rec.Deleted)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

func (s *indexStore) Range(ctx context.Context, r storage.KeyRange) ([]*storage.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if r.Skip < 0 || r.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}
	if r.Start != nil && r.End != nil && bytes.Compare(r.Start, r.End) >= 0 {
		return nil, nil
	}

	space := makeIndexSpace(s.name, indexRecordSpace)
	var recs []*storage.Record
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = space
		iterOpts.Reverse = r.Descending
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		var seek []byte
		switch {
		case !r.Descending:
			seek = makeIndexKey(s.name, indexRecordSpace, r.Start)
		case r.End != nil:
			seek = makeIndexKey(s.name, indexRecordSpace, r.End)
		default:
			seek = prefixEnd(space)
		}

		skipped := 0
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			key := item.Key()[len(space):]

			if r.Descending {
				if r.End != nil && bytes.Compare(key, r.End) >= 0 {
					continue
				}
				if r.Start != nil && bytes.Compare(key, r.Start) < 0 {
					break
				}
			} else if r.End != nil && bytes.Compare(key, r.End) >= 0 {
				break
			}

			rec, err := decodeRecord(item, key)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if skipped < r.Skip {
				skipped++
				continue
			}
			recs = append(recs, rec)
			if r.Limit > 0 && len(recs) >= r.Limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *indexStore) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = makeIndexSpace(s.name, indexRecordSpace)
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				_, deleted, err := storage.UnmarshalEntry(val)
				if err == nil && !deleted {
					count++
				}
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return count, err
}

func (s *indexStore) Destroy(ctx context.Context) error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	return NewIndexStores(s.backend).DestroyIndexStore(ctx, s.name)
}

// readRecord loads a live record. Returns nil, nil for missing keys and
// tombstones.
func readRecord(tx *badger.Txn, name string, space byte, key []byte) (*storage.Record, error) {
	item, err := tx.Get(makeIndexKey(name, space, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rec, err := decodeRecord(item, key)
	if rec != nil {
		rec.Local = space == indexLocalSpace
	}
	return rec, err
}

func decodeRecord(item *badger.Item, key []byte) (*storage.Record, error) {
	var rec *storage.Record
	err := item.Value(func(val []byte) error {
		value, deleted, err := storage.UnmarshalEntry(val)
		if err != nil {
			return err
		}
		if !deleted {
			rec = &storage.Record{Key: bytes.Clone(key), Value: value}
		}
		return nil
	})
	return rec, err
}
