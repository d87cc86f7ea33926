package segmented

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/oe-mirrors/streamlink-27/internal/metrics"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// onceCloser closes the wrapped sink exactly once, no matter how many
// callers race to close it. Writes after close fail.
type onceCloser struct {
	w io.WriteCloser

	mu     sync.Mutex
	once   sync.Once
	closed bool
	err    error
}

func newOnceCloser(w io.WriteCloser) *onceCloser {
	if oc, ok := w.(*onceCloser); ok {
		return oc
	}
	return &onceCloser{w: w}
}

func (c *onceCloser) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return 0, io.ErrClosedPipe
	}
	return c.w.Write(p)
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.err = c.w.Close()
	})
	return c.err
}

// Writer hands results to the sink strictly in the order they were queued.
type Writer struct {
	logger    zerolog.Logger
	sink      *onceCloser
	failFast  bool
	threshold int
	kind      string

	decryptFailures int
	written         int64
}

func newWriter(logger zerolog.Logger, sink *onceCloser, config Config, kind string) *Writer {
	return &Writer{
		logger:    logger.With().Str("submodule", "writer").Logger(),
		sink:      sink,
		failFast:  config.FailFast,
		threshold: config.DecryptFailureThreshold,
		kind:      kind,
	}
}

func (w *Writer) Run(ctx context.Context, results <-chan *result) error {
	for {
		var res *result
		var ok bool

		select {
		case res, ok = <-results:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		// wait for the next segment in order
		select {
		case <-res.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := w.write(res); err != nil {
			return err
		}
	}
}

func (w *Writer) write(res *result) error {
	seg := res.segment
	logger := w.logger.With().Int64("sequence", seg.Sequence).Logger()

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
			return res.err
		}
		return w.segmentError(logger, res.err)
	}

	w.decryptFailures = 0

	if seg.Discard {
		metrics.IncSegmentDiscarded(w.kind)
		logger.Debug().Msg("discarding segment")
		return nil
	}

	n, err := w.sink.Write(res.data)
	w.written += int64(n)
	if err != nil {
		return &media.SinkWriteError{Err: err}
	}

	metrics.ObserveSegmentWritten(w.kind, n)
	logger.Trace().Int("bytes", n).Bool("init", seg.Init).Msg("segment written")
	return nil
}

// segmentError decides whether a failed segment is skipped or ends the
// session.
func (w *Writer) segmentError(logger zerolog.Logger, err error) error {
	var decryptErr *media.SegmentDecryptError
	if errors.As(err, &decryptErr) {
		w.decryptFailures++
		if w.decryptFailures > w.threshold {
			return fmt.Errorf("%d consecutive segments could not be decrypted: %w", w.decryptFailures, err)
		}
		logger.Warn().Err(err).Msg("skipping segment, decryption failed")
		return nil
	}

	var fetchErr *media.SegmentFetchError
	if errors.As(err, &fetchErr) && !w.failFast {
		logger.Warn().Err(err).Msg("skipping segment, download failed")
		return nil
	}

	return err
}

func (w *Writer) Written() int64 {
	return w.written
}
