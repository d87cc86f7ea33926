package output

import (
	"io"
	"sync"
)

// PipeCtx forwards writes to w and never closes it, so stdout or a shared
// writer survives the end of the stream.
type PipeCtx struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func Pipe(w io.Writer) *PipeCtx {
	return &PipeCtx{w: w}
}

func (p *PipeCtx) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return 0, io.ErrClosedPipe
	}
	return p.w.Write(b)
}

// Close flushes w when it supports it and detaches from it.
func (p *PipeCtx) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if s, ok := p.w.(interface{ Sync() error }); ok {
		// pipes and terminals do not support fsync
		_ = s.Sync()
	}
	return nil
}
