package utils

import (
	"io"
	"sync"
)

// RingBuffer is a fixed size in-memory byte queue. Writes block while the
// buffer is full, reads block while it is empty. After Close, writes fail
// and reads drain remaining data before returning the close error or EOF.
type RingBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf    []byte
	start  int
	length int

	closed bool
	err    error
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 16 * 1024 * 1024
	}

	rb := &RingBuffer{
		buf: make([]byte, size),
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

func (rb *RingBuffer) Write(p []byte) (n int, err error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for len(p) > 0 {
		for rb.length == len(rb.buf) && !rb.closed {
			rb.cond.Wait()
		}
		if rb.closed {
			return n, io.ErrClosedPipe
		}

		// write into free space, possibly wrapping around
		end := (rb.start + rb.length) % len(rb.buf)
		free := len(rb.buf) - rb.length
		chunk := len(p)
		if chunk > free {
			chunk = free
		}
		if end+chunk > len(rb.buf) {
			first := copy(rb.buf[end:], p[:chunk])
			copy(rb.buf, p[first:chunk])
		} else {
			copy(rb.buf[end:], p[:chunk])
		}

		rb.length += chunk
		n += chunk
		p = p[chunk:]
		rb.cond.Broadcast()
	}

	return n, nil
}

func (rb *RingBuffer) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.length == 0 && !rb.closed {
		rb.cond.Wait()
	}

	if rb.length == 0 {
		if rb.err != nil {
			return 0, rb.err
		}
		return 0, io.EOF
	}

	chunk := len(p)
	if chunk > rb.length {
		chunk = rb.length
	}
	if rb.start+chunk > len(rb.buf) {
		first := copy(p, rb.buf[rb.start:])
		copy(p[first:chunk], rb.buf)
	} else {
		copy(p, rb.buf[rb.start:rb.start+chunk])
	}

	rb.start = (rb.start + chunk) % len(rb.buf)
	rb.length -= chunk
	rb.cond.Broadcast()

	return chunk, nil
}

// Len returns number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// CloseWithError closes the buffer, readers receive err once drained.
// Only the first call has effect.
func (rb *RingBuffer) CloseWithError(err error) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return nil
	}

	rb.closed = true
	rb.err = err
	rb.cond.Broadcast()
	return nil
}

func (rb *RingBuffer) Close() error {
	return rb.CloseWithError(nil)
}
