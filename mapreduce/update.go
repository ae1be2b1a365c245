package mapreduce

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/quicksearch/core"
	"github.com/poiesic/quicksearch/storage"
)

var cursorKey = []byte(core.LocalPrefix + "lastSeq")

func ledgerKey(docID string) []byte {
	return []byte(core.LocalPrefix + "doc_" + docID)
}

// readCursor returns the last processed sequence, 0 when the view is new.
func readCursor(ctx context.Context, store storage.IndexStore) (uint64, error) {
	rec, err := store.GetLocal(ctx, cursorKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return storage.UnmarshalCursor(rec.Value)
}

// update runs the change-batch state machine until the view has caught up
// with the document store. Callers must hold the view's queue slot.
func (e *Engine) update(ctx context.Context, v *View) error {
	if v.Destroyed() {
		return fmt.Errorf("%w: %s", ErrViewDestroyed, v.Name())
	}

	start := time.Now()
	cursor, err := readCursor(ctx, v.store)
	if err != nil {
		return fmt.Errorf("failed to read cursor of view %s: %w", v.Name(), err)
	}

	total := 0
	for caughtUp := false; !caughtUp; {
		if err := ctx.Err(); err != nil {
			return err
		}

		changes, err := e.docs.Changes(ctx, cursor, e.batchSize)
		if err != nil {
			return fmt.Errorf("failed to read changes since %d: %w", cursor, err)
		}
		caughtUp = len(changes) < e.batchSize
		if len(changes) == 0 {
			break
		}

		cursor = changes[len(changes)-1].Seq
		if err := e.commitWindow(ctx, v, e.mapBatch(v, changes)); err != nil {
			return err
		}
		total += len(changes)
	}

	e.observer.UpdateFinished(v.Name(), cursor, total, time.Since(start))
	return nil
}

type emission struct {
	key      string
	value    core.Value
	tiebreak int
}

type mappedChange struct {
	change  *core.Change
	emitted []emission
	skip    bool
}

// mapBatch runs the map function over every change of a window.
func (e *Engine) mapBatch(v *View, changes []*core.Change) []mappedChange {
	batch := make([]mappedChange, len(changes))
	for i, change := range changes {
		batch[i].change = change
		if strings.HasPrefix(change.ID, core.InternalPrefix) {
			batch[i].skip = true
			continue
		}
		if !change.Deleted && change.Doc != nil {
			batch[i].emitted = e.runMap(v, change.Doc)
		}
	}
	return batch
}

// commitWindow writes the records that bring the view store in line with
// batch, together with the cursor moved to its last change, in one
// transaction. A window that does not fit one transaction is split in
// halves, each committed with its own cursor.
func (e *Engine) commitWindow(ctx context.Context, v *View, batch []mappedChange) error {
	var records []*storage.Record
	for _, m := range batch {
		if m.skip {
			continue
		}
		recs, err := e.diff(ctx, v, m.change, m.emitted)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}

	cursor := batch[len(batch)-1].change.Seq
	records = append(records, &storage.Record{Key: cursorKey, Value: storage.MarshalCursor(cursor), Local: true})
	err := v.store.BulkWrite(ctx, records...)
	if errors.Is(err, storage.ErrBatchTooLarge) && len(batch) > 1 {
		half := len(batch) / 2
		e.logger.Debug("splitting view batch", "view", v.Name(), "changes", len(batch), "records", len(records))
		if err := e.commitWindow(ctx, v, batch[:half]); err != nil {
			return err
		}
		return e.commitWindow(ctx, v, batch[half:])
	}
	if err != nil {
		return fmt.Errorf("failed to persist batch of view %s: %w", v.Name(), err)
	}

	e.observer.BatchCommitted(v.Name(), cursor, len(batch), len(records))
	e.logger.Debug("committed view batch", "view", v.Name(), "seq", cursor, "changes", len(batch), "records", len(records))
	return nil
}

// runMap runs the view's map function and returns its emissions sorted by
// key then value. A failing map function yields no emissions.
func (e *Engine) runMap(v *View, doc *core.Document) (emitted []emission) {
	fail := func(err error) {
		emitted = nil
		e.observer.MapFailed(v.Name(), doc.ID)
		e.onMapError(&MapError{View: v.Name(), DocID: doc.ID, Err: err})
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	err := v.def.Map(doc, func(key string, value core.Value) {
		emitted = append(emitted, emission{key: key, value: value, tiebreak: noTiebreak})
	})
	if err != nil {
		fail(err)
		return nil
	}

	slices.SortStableFunc(emitted, func(a, b emission) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return core.CompareValues(a.value, b.value)
	})
	for i := 1; i < len(emitted); i++ {
		if emitted[i].key == emitted[i-1].key {
			emitted[i].tiebreak = i
		}
	}
	return emitted
}
