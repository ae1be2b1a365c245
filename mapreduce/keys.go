package mapreduce

import "encoding/binary"

// Composite view keys are (key, docID[, tiebreak]) tuples encoded so that
// byte order matches tuple order. Each string component has its 0x00 bytes
// escaped as 0x00 0xFF and is terminated by 0x00 0x01, so a shorter string
// always sorts before any longer string sharing its prefix.

const (
	escapeByte     = 0x00
	escapedZero    = 0xFF
	terminatorByte = 0x01
	// afterTerminator sorts after every terminated component. Appending it in
	// place of the terminator yields an exclusive bound past every tuple
	// starting with a given key.
	afterTerminator = 0x02

	noTiebreak = -1
)

func appendComponent(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == escapeByte {
			buf = append(buf, escapeByte, escapedZero)
			continue
		}
		buf = append(buf, s[i])
	}
	return append(buf, escapeByte, terminatorByte)
}

// compositeKey encodes a view row key. A negative tiebreak is omitted.
func compositeKey(key, docID string, tiebreak int) []byte {
	buf := make([]byte, 0, len(key)+len(docID)+8)
	buf = appendComponent(buf, key)
	buf = appendComponent(buf, docID)
	if tiebreak >= 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(tiebreak))
	}
	return buf
}

// keyStart is the inclusive lower bound of every row emitted under key.
func keyStart(key string) []byte {
	return appendComponent(nil, key)
}

// keyEnd is the exclusive upper bound of every row emitted under key.
func keyEnd(key string) []byte {
	buf := appendComponent(nil, key)
	buf[len(buf)-1] = afterTerminator
	return buf
}

// rowKeyRange returns the half-open byte range holding every row emitted
// under key.
func rowKeyRange(key string) ([]byte, []byte) {
	return keyStart(key), keyEnd(key)
}
