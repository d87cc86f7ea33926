package segmented

import (
	"context"
	"errors"
	"io"

	"github.com/oe-mirrors/streamlink-27/internal/utils"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// Reader runs a session in the background into a ring buffer and exposes
// the stream as io.ReadCloser. Closing the reader closes the session.
type Reader struct {
	session *Session
	buffer  *utils.RingBuffer
	done    chan struct{}
}

// ringSink closes the ring buffer with the session error once it is known.
type ringSink struct {
	*utils.RingBuffer
}

func (ringSink) Close() error { return nil }

func NewReader(ctx context.Context, config *Config, loader Loader, opts Options) *Reader {
	cfg := config.withDefaultValues()
	buffer := utils.NewRingBuffer(cfg.RingBufferSize)

	r := &Reader{
		session: NewSession(&cfg, loader, ringSink{buffer}, opts),
		buffer:  buffer,
		done:    make(chan struct{}),
	}

	// parent cancellation unblocks a writer waiting for free space
	stop := context.AfterFunc(ctx, func() {
		_ = buffer.CloseWithError(ctx.Err())
	})

	go func() {
		defer close(r.done)
		defer stop()

		err := r.session.Run(ctx)
		if errors.Is(err, media.ErrSessionClosed) {
			err = nil
		}
		_ = buffer.CloseWithError(err)
	}()

	return r
}

func (r *Reader) Session() *Session {
	return r.session
}

// Read returns io.EOF after a clean end of stream, or the session error.
func (r *Reader) Read(p []byte) (int, error) {
	return r.buffer.Read(p)
}

func (r *Reader) Close() error {
	// unblock the writer if the buffer is full
	_ = r.buffer.CloseWithError(io.ErrClosedPipe)
	err := r.session.Close()
	<-r.done
	return err
}
