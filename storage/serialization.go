// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/json"
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/quicksearch/core"
)

func serializationError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, err)
}

func sizeValue(v core.Value) int {
	size := varint.Uint64.Size(uint64(v.Kind))
	switch v.Kind {
	case core.KindNumber:
		size += raw.Float64.Size(v.Number)
	case core.KindNumbers:
		size += varint.Uint64.Size(uint64(len(v.Numbers)))
		for _, f := range v.Numbers {
			size += raw.Float64.Size(f)
		}
	}
	return size
}

func marshalValue(v core.Value, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(v.Kind), bs)
	switch v.Kind {
	case core.KindNumber:
		n += raw.Float64.Marshal(v.Number, bs[n:])
	case core.KindNumbers:
		n += varint.Uint64.Marshal(uint64(len(v.Numbers)), bs[n:])
		for _, f := range v.Numbers {
			n += raw.Float64.Marshal(f, bs[n:])
		}
	}
	return n
}

func unmarshalValue(bs []byte) (core.Value, int, error) {
	kind, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return core.Value{}, n, err
	}
	switch core.ValueKind(kind) {
	case core.KindNone:
		return core.None(), n, nil
	case core.KindNumber:
		f, m, err := raw.Float64.Unmarshal(bs[n:])
		return core.Number(f), n + m, err
	case core.KindNumbers:
		count, m, err := varint.Uint64.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return core.Value{}, n, err
		}
		if count > uint64(len(bs)-n) {
			return core.Value{}, n, ErrTruncatedData
		}
		nums := make([]float64, 0, count)
		for range count {
			f, m, err := raw.Float64.Unmarshal(bs[n:])
			n += m
			if err != nil {
				return core.Value{}, n, err
			}
			nums = append(nums, f)
		}
		return core.Numbers(nums...), n, nil
	}
	return core.Value{}, n, fmt.Errorf("unknown value kind %d", kind)
}

// MarshalValue serializes a Value to bytes.
func MarshalValue(v core.Value) []byte {
	buf := make([]byte, sizeValue(v))
	marshalValue(v, buf)
	return buf
}

// UnmarshalValue deserializes a Value from bytes.
func UnmarshalValue(data []byte) (core.Value, error) {
	v, _, err := unmarshalValue(data)
	if err != nil {
		return core.Value{}, serializationError("value", err)
	}
	return v, nil
}

// MarshalKV serializes a view row to bytes.
func MarshalKV(kv *core.KV) []byte {
	size := ord.String.Size(kv.Key) + ord.String.Size(kv.DocID) + sizeValue(kv.Value)
	buf := make([]byte, size)
	n := ord.String.Marshal(kv.Key, buf)
	n += ord.String.Marshal(kv.DocID, buf[n:])
	marshalValue(kv.Value, buf[n:])
	return buf
}

// UnmarshalKV deserializes a view row from bytes.
func UnmarshalKV(data []byte) (*core.KV, error) {
	key, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, serializationError("kv key", err)
	}
	docID, m, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, serializationError("kv doc id", err)
	}
	n += m
	value, _, err := unmarshalValue(data[n:])
	if err != nil {
		return nil, serializationError("kv value", err)
	}
	return &core.KV{Key: key, DocID: docID, Value: value}, nil
}

// MarshalLedger serializes the list of keys a document emitted.
func MarshalLedger(keys []string) []byte {
	size := varint.Uint64.Size(uint64(len(keys)))
	for _, k := range keys {
		size += ord.String.Size(k)
	}
	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(len(keys)), buf)
	for _, k := range keys {
		n += ord.String.Marshal(k, buf[n:])
	}
	return buf
}

// UnmarshalLedger deserializes a ledger.
func UnmarshalLedger(data []byte) ([]string, error) {
	count, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, serializationError("ledger", err)
	}
	if count > uint64(len(data)-n) {
		return nil, serializationError("ledger", ErrTruncatedData)
	}
	keys := make([]string, 0, count)
	for range count {
		k, m, err := ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, serializationError("ledger key", err)
		}
		n += m
		keys = append(keys, k)
	}
	return keys, nil
}

// MarshalCursor serializes a change-feed sequence.
func MarshalCursor(seq uint64) []byte {
	buf := make([]byte, varint.Uint64.Size(seq))
	varint.Uint64.Marshal(seq, buf)
	return buf
}

// UnmarshalCursor deserializes a change-feed sequence.
func UnmarshalCursor(data []byte) (uint64, error) {
	seq, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, serializationError("cursor", err)
	}
	return seq, nil
}

// MarshalEntry serializes an index store record payload with its
// tombstone flag.
func MarshalEntry(value []byte, deleted bool) []byte {
	s := string(value)
	buf := make([]byte, ord.Bool.Size(deleted)+ord.String.Size(s))
	n := ord.Bool.Marshal(deleted, buf)
	ord.String.Marshal(s, buf[n:])
	return buf
}

// UnmarshalEntry deserializes an index store record payload.
func UnmarshalEntry(data []byte) ([]byte, bool, error) {
	deleted, n, err := ord.Bool.Unmarshal(data)
	if err != nil {
		return nil, false, serializationError("entry", err)
	}
	s, _, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, false, serializationError("entry value", err)
	}
	return []byte(s), deleted, nil
}

// MarshalDocument serializes a stored document. The body is kept as JSON.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return nil, serializationError("document body", err)
	}
	b := string(body)
	size := ord.String.Size(doc.ID) + ord.String.Size(doc.Rev) +
		varint.Uint64.Size(doc.Seq) + ord.Bool.Size(doc.Deleted) + ord.String.Size(b)
	buf := make([]byte, size)
	n := ord.String.Marshal(doc.ID, buf)
	n += ord.String.Marshal(doc.Rev, buf[n:])
	n += varint.Uint64.Marshal(doc.Seq, buf[n:])
	n += ord.Bool.Marshal(doc.Deleted, buf[n:])
	ord.String.Marshal(b, buf[n:])
	return buf, nil
}

// UnmarshalDocument deserializes a stored document.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var (
		doc core.Document
		n   int
	)
	id, m, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, serializationError("document id", err)
	}
	n += m
	rev, m, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, serializationError("document rev", err)
	}
	n += m
	seq, m, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, serializationError("document seq", err)
	}
	n += m
	deleted, m, err := ord.Bool.Unmarshal(data[n:])
	if err != nil {
		return nil, serializationError("document deleted", err)
	}
	n += m
	body, _, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, serializationError("document body", err)
	}
	doc.ID, doc.Rev, doc.Seq, doc.Deleted = id, rev, seq, deleted
	if err := json.Unmarshal([]byte(body), &doc.Body); err != nil {
		return nil, serializationError("document body", err)
	}
	return &doc, nil
}
