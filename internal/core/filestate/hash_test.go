package filestate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	data := []byte("hello world")
	assert.Equal(t, Hash(data), Hash(data))
	assert.NotEqual(t, Hash(data), Hash([]byte("hello world!")))
	assert.Len(t, Hash(data), 32)
}

func TestQuickHash_SmallFileMatchesFullHash(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1000)
	assert.Equal(t, Hash(data), QuickHash(data))
}

func TestQuickHash_LargeFileSamples(t *testing.T) {
	small := make([]byte, 70000)
	for i := range small {
		small[i] = byte(i % 251)
	}
	large := make([]byte, len(small))
	copy(large, small)
	// Mutate only the untouched bulk between head and mid-minus-chunk.
	large[20000] ^= 0xFF

	assert.Equal(t, QuickHash(small), QuickHash(large), "quick hash samples head/mid/tail/size, not the whole body")

	// A change to the sampled tail must be detected.
	tailMutated := make([]byte, len(small))
	copy(tailMutated, small)
	tailMutated[len(tailMutated)-1] ^= 0xFF
	assert.NotEqual(t, QuickHash(small), QuickHash(tailMutated))
}

func TestQuickHash_DifferentSizeDiffers(t *testing.T) {
	a := make([]byte, 70000)
	b := make([]byte, 70001)
	assert.NotEqual(t, QuickHash(a), QuickHash(b))
}
