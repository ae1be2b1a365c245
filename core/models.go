package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// Documents whose ID starts with InternalPrefix are never indexed.
// LocalPrefix holds engine bookkeeping such as cursors and ledgers.
const (
	InternalPrefix = "_"
	LocalPrefix    = "_local/"
)

// Document is a JSON-like record held by the document store.
type Document struct {
	ID      string
	Rev     string
	Seq     uint64
	Deleted bool
	Body    map[string]any
}

// IsInternal reports whether the document ID is reserved for store bookkeeping.
func (d *Document) IsInternal() bool {
	return strings.HasPrefix(d.ID, InternalPrefix)
}

// MarshalJSON renders the document as its body with _id, _rev and,
// for tombstones, _deleted merged in.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Body)+3)
	for k, v := range d.Body {
		out[k] = v
	}
	out["_id"] = d.ID
	if d.Rev != "" {
		out["_rev"] = d.Rev
	}
	if d.Deleted {
		out["_deleted"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a document body, pulling _id, _rev and _deleted out
// of the body map.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["_id"].(string); ok {
		d.ID = id
	}
	if rev, ok := raw["_rev"].(string); ok {
		d.Rev = rev
	}
	if deleted, ok := raw["_deleted"].(bool); ok {
		d.Deleted = deleted
	}
	delete(raw, "_id")
	delete(raw, "_rev")
	delete(raw, "_deleted")
	d.Body = raw
	return nil
}

// Change is a single entry of the document store's change feed.
type Change struct {
	Seq     uint64
	ID      string
	Changes []string // leaf revisions
	Deleted bool
	Doc     *Document
}

// NewRevision builds a revision string "<generation>-<hash>" where hash is
// a BLAKE2b digest of the JSON encoded body.
func NewRevision(generation int, body map[string]any, deleted bool) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	if deleted {
		h.Write([]byte{1})
	}
	return fmt.Sprintf("%d-%s", generation, hex.EncodeToString(h.Sum(nil))), nil
}

// StaleMode controls whether a query waits for index maintenance.
type StaleMode string

const (
	// StaleDefault brings the index up to date before querying.
	StaleDefault StaleMode = ""
	// StaleOK queries the index as it is.
	StaleOK StaleMode = "ok"
	// StaleUpdateAfter queries the index as it is, then schedules an update.
	StaleUpdateAfter StaleMode = "update_after"
)

// ParseStaleMode converts user input into a StaleMode.
func ParseStaleMode(s string) (StaleMode, error) {
	switch StaleMode(s) {
	case StaleDefault, StaleOK, StaleUpdateAfter:
		return StaleMode(s), nil
	case "false":
		return StaleDefault, nil
	}
	return StaleDefault, fmt.Errorf("%w: %q", ErrInvalidStaleMode, s)
}

// Emission is a single (key, value) pair produced by a map function.
type Emission struct {
	Key   string
	Value Value
}

// KV is a persisted view row: an emitted key, the document that emitted it
// and the emitted value.
type KV struct {
	Key   string
	DocID string
	Value Value
}
