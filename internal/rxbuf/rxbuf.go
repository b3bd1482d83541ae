// Package rxbuf holds bytes received from a connection until the dispatcher consumes them.
package rxbuf

import "errors"

var (
	ErrCapacityExceeded = errors.New("receive buffer capacity exceeded")
	ErrInsufficientData = errors.New("not enough buffered data")
)

// Buffer is an append-only byte accumulator with a consumed prefix.
// Invariant: consumed <= end <= len(b) and end-consumed <= max.
type Buffer struct {
	b        []byte
	consumed int
	end      int
	max      int
}

// New returns a buffer starting at initial bytes that grows up to max live bytes.
func New(initial, max int) *Buffer {
	if initial > max {
		initial = max
	}
	return &Buffer{b: make([]byte, initial), max: max}
}

// Max is the largest number of unconsumed bytes the buffer will hold.
func (b *Buffer) Max() int {
	return b.max
}

// Available returns the number of bytes not yet consumed.
func (b *Buffer) Available() int {
	return b.end - b.consumed
}

// Append copies p to the end of the buffer.
// Nothing is appended if the live bytes would exceed the configured maximum.
func (b *Buffer) Append(p []byte) error {
	if b.Available()+len(p) > b.max {
		return ErrCapacityExceeded
	}

	if b.end+len(p) > len(b.b) {
		b.Compact()
		if b.end+len(p) > len(b.b) {
			size := 2 * len(b.b)
			if size < b.end+len(p) {
				size = b.end + len(p)
			}
			if size > b.max {
				size = b.max
			}
			nb := make([]byte, size)
			copy(nb, b.b[:b.end])
			b.b = nb
		}
	}

	b.end += copy(b.b[b.end:], p)
	return nil
}

// Peek returns the next n unconsumed bytes. The slice is only valid until the next Append or Compact.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n < 0 || n > b.Available() {
		return nil, ErrInsufficientData
	}
	return b.b[b.consumed : b.consumed+n : b.consumed+n], nil
}

// Consume marks n bytes as handed off.
func (b *Buffer) Consume(n int) error {
	if n < 0 || n > b.Available() {
		return ErrInsufficientData
	}
	b.consumed += n
	if b.consumed == b.end {
		b.consumed, b.end = 0, 0
	}
	return nil
}

// Compact drops consumed bytes, moving the rest to the front.
func (b *Buffer) Compact() {
	if b.consumed == 0 {
		return
	}
	n := copy(b.b, b.b[b.consumed:b.end])
	b.consumed, b.end = 0, n
}

// Reset discards everything.
func (b *Buffer) Reset() {
	b.consumed, b.end = 0, 0
}
