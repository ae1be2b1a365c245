package badger

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/poiesic/quicksearch/storage"
)

// Key prefixes for different data types
const (
	documentPrefix  = "doc:"
	sequencePrefix  = "seq:"
	updateSeqKey    = "meta:updateseq"
	dependentPrefix = "dep:"
	indexPrefix     = "ix:"

	indexRecordSpace = 'r'
	indexLocalSpace  = 'l'
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeSequenceKey generates a key for the change feed.
// Format: prefix:seq
func makeSequenceKey(seq uint64) []byte {
	buf := make([]byte, len(sequencePrefix)+8)
	offset := copy(buf, sequencePrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// parseSequenceKey extracts the sequence from a change feed key.
func parseSequenceKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(sequencePrefix):])
}

// makeDependentKey generates the registration key of a dependent index store.
func makeDependentKey(name string) []byte {
	return []byte(dependentPrefix + name)
}

// makeIndexPrefix generates the prefix owning every key of an index store.
// Format: prefix:name\x00
func makeIndexPrefix(name string) []byte {
	return []byte(indexPrefix + name + "\x00")
}

// makeIndexSpace generates the prefix of one key space of an index store.
func makeIndexSpace(name string, space byte) []byte {
	return append(makeIndexPrefix(name), space)
}

// makeIndexKey generates a key inside one key space of an index store.
func makeIndexKey(name string, space byte, key []byte) []byte {
	prefix := makeIndexSpace(name, space)
	buf := make([]byte, len(prefix)+len(key))
	offset := copy(buf, prefix)
	copy(buf[offset:], key)
	return buf
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func validateStoreName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidStoreName, name)
	}
	return nil
}
