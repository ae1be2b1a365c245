package mapreduce

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
)

// readLedger returns the composite keys a document emitted on earlier
// passes. A missing ledger means no prior state.
func readLedger(ctx context.Context, store storage.IndexStore, docID string) ([]string, error) {
	rec, err := store.GetLocal(ctx, ledgerKey(docID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalLedger(rec.Value)
}

// diff computes the records that replace a document's previous rows with
// emitted. Rows that are no longer emitted become tombstones; the ledger
// keeps the union of old and new keys.
func (e *Engine) diff(ctx context.Context, v *View, change *core.Change, emitted []emission) ([]*storage.Record, error) {
	var oldKeys []string
	if !core.IsFirstGeneration(change) {
		var err error
		if oldKeys, err = readLedger(ctx, v.store, change.ID); err != nil {
			return nil, fmt.Errorf("failed to read ledger of %s: %w", change.ID, err)
		}
	}

	records := make([]*storage.Record, 0, len(emitted)+1)
	current := make(map[string]struct{}, len(emitted))
	newKeys := make([]string, 0, len(emitted))
	for _, em := range emitted {
		key := compositeKey(em.key, change.ID, em.tiebreak)
		current[string(key)] = struct{}{}
		newKeys = append(newKeys, string(key))
		records = append(records, &storage.Record{
			Key:   key,
			Value: storage.MarshalKV(&core.KV{Key: em.key, DocID: change.ID, Value: em.value}),
		})
	}

	var stale [][]byte
	for _, key := range oldKeys {
		if _, ok := current[key]; !ok {
			stale = append(stale, []byte(key))
		}
	}
	if len(stale) > 0 {
		live, err := v.store.GetMany(ctx, stale...)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows of %s: %w", change.ID, err)
		}
		for i, rec := range live {
			if rec != nil {
				records = append(records, &storage.Record{Key: stale[i], Deleted: true})
			}
		}
	}

	if len(newKeys) == 0 && len(oldKeys) == 0 {
		return records, nil
	}
	ledger := make([]string, 0, len(newKeys)+len(oldKeys))
	seen := make(map[string]struct{}, len(newKeys)+len(oldKeys))
	for _, key := range append(newKeys, oldKeys...) {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ledger = append(ledger, key)
	}
	records = append(records, &storage.Record{Key: ledgerKey(change.ID), Value: storage.MarshalLedger(ledger), Local: true})
	return records, nil
}
