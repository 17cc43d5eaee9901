package filestate

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const (
	quickHashThreshold = 65536
	quickHashChunkSize = 16384
)

// Hash returns the full-content BLAKE3 digest of data, truncated to its
// first 32 hex characters — enough to detect a change without paying for
// a full 64-character digest string everywhere it's stored.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}

// QuickHash hashes data the same way Hash does when data is at most 64KB.
// Past that threshold it samples the head, middle, and tail 16KB chunks
// plus the little-endian length, trading a small false-negative risk
// (two files differing only in the untouched middle bulk) for avoiding a
// full read of every large file on every comparison.
func QuickHash(data []byte) string {
	n := len(data)
	if n <= quickHashThreshold {
		return Hash(data)
	}

	h := blake3.New()
	h.Write(data[:quickHashChunkSize])
	mid := n / 2
	h.Write(data[mid-quickHashChunkSize/2 : mid+quickHashChunkSize/2])
	h.Write(data[n-quickHashChunkSize:])

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(n))
	h.Write(lenBuf[:])

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:32]
}
