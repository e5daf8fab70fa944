package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DomainMug separates mug hashing from any other use of SHA-256.
const DomainMug = "vere/mug/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Mug folds data into a previous mug, producing a nonzero 31-bit checksum.
func Mug(prev uint32, data []byte) uint32 {
	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], prev)

	sum := hashWithDomain(DomainMug, append(seed[:], data...))
	mug := binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff
	if mug == 0 {
		// 0 means "no checksum" on a fact
		mug = 1
	}
	return mug
}

// FactMug is the mug an engine reaches after computing f on top of prev.
func FactMug(prev uint32, f Fact) (uint32, error) {
	job, err := EncodeJob(f)
	if err != nil {
		return 0, fmt.Errorf("fact %d: %w", f.Eve, err)
	}
	return Mug(prev, job), nil
}
