package engine

import "io"

// countingReader wraps an io.Reader, invoking onRead with the number of
// bytes returned by each successful Read call. streamCopy uses it to
// tally bytesTransferred and checkpoint transfer-state progress in real
// time as WriteStream consumes the reopened temp file, rather than
// crediting the whole file's size only once the copy finishes.
type countingReader struct {
	r      io.Reader
	onRead func(n int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.onRead != nil {
		c.onRead(n)
	}
	return n, err
}
