package eventlog

import "encoding/binary"

// Keyspace (byte-wise, lexicographically sortable):
//   - e/{eve_be8}    fact record
//   - m/last         highest event, be8
//   - m/pier         pier identity, canonical JSON
//   - m/version      record format version

var (
	entryPrefix = []byte("e/")
	keyLast     = []byte("m/last")
	keyPier     = []byte("m/pier")
	keyVersion  = []byte("m/version")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyFact builds the entry key for eve.
func keyFact(eve uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return appendBE8(k, eve)
}

// eveOf extracts the event number from an entry key.
func eveOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(entryPrefix):])
}
