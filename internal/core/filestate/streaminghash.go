package filestate

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// StreamingHash computes the same head/middle/tail sample QuickHash uses
// for files above quickHashThreshold, but incrementally: callers feed it
// consecutive, non-overlapping chunks as they're read off a large file
// instead of holding the whole thing in memory at once. Sum matches
// QuickHash only when size is above quickHashThreshold; the engine uses it
// for every file at or above its StreamThreshold (128MB by default), and a
// smaller configured threshold yields digests that differ from QuickHash.
type StreamingHash struct {
	size int64

	headEnd            int64
	midStart, midEnd   int64
	tailStart          int64

	head, mid, tail []byte
}

// NewStreamingHash prepares a StreamingHash for a file of the given total
// size.
func NewStreamingHash(size int64) *StreamingHash {
	mid := size / 2
	return &StreamingHash{
		size:      size,
		headEnd:   quickHashChunkSize,
		midStart:  mid - quickHashChunkSize/2,
		midEnd:    mid + quickHashChunkSize/2,
		tailStart: size - quickHashChunkSize,
	}
}

// Write records chunk, which starts at offset bytes into the file,
// capturing whatever part of it overlaps the head/middle/tail windows.
func (h *StreamingHash) Write(offset int64, chunk []byte) {
	h.capture(offset, chunk, 0, h.headEnd, &h.head)
	h.capture(offset, chunk, h.midStart, h.midEnd, &h.mid)
	h.capture(offset, chunk, h.tailStart, h.size, &h.tail)
}

func (h *StreamingHash) capture(offset int64, chunk []byte, winStart, winEnd int64, dst *[]byte) {
	chunkEnd := offset + int64(len(chunk))
	lo, hi := offset, chunkEnd
	if winStart > lo {
		lo = winStart
	}
	if winEnd < hi {
		hi = winEnd
	}
	if lo >= hi {
		return
	}
	*dst = append(*dst, chunk[lo-offset:hi-offset]...)
}

// Sum finalizes the digest the same way QuickHash would have for a buffer
// of this size: head, middle, tail, then the little-endian length.
func (h *StreamingHash) Sum() string {
	hh := blake3.New()
	hh.Write(h.head)
	hh.Write(h.mid)
	hh.Write(h.tail)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(h.size))
	hh.Write(lenBuf[:])

	sum := hh.Sum(nil)
	return hex.EncodeToString(sum)[:32]
}
