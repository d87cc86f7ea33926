package utils

import (
	"io"
	"net/http"
	"sync"
)

// HTTPWriterCtx writes a byte stream into a http response, flushing after
// every write so clients receive data as soon as it is available.
type HTTPWriterCtx struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	written int64
	closed  bool
}

func HTTPWriter(w http.ResponseWriter) *HTTPWriterCtx {
	flusher, _ := w.(http.Flusher)

	return &HTTPWriterCtx{
		w:       w,
		flusher: flusher,
	}
}

func (h *HTTPWriterCtx) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, io.ErrClosedPipe
	}

	n, err := h.w.Write(p)
	h.written += int64(n)
	if err != nil {
		return n, err
	}

	if h.flusher != nil {
		h.flusher.Flush()
	}

	return n, nil
}

// Written returns how many bytes reached the response.
func (h *HTTPWriterCtx) Written() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.written
}

// Close stops further writes, the response itself is finished by the handler.
func (h *HTTPWriterCtx) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	return nil
}
