package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/internal/metrics"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

// HTTPStream copies a single resource to the sink.
type HTTPStream struct {
	URL  string
	opts Options
}

func NewHTTPStream(url string, opts Options) *HTTPStream {
	return &HTTPStream{URL: url, opts: opts.withDefaultValues()}
}

func (s *HTTPStream) Kind() Kind {
	return KindHTTP
}

func (s *HTTPStream) WriteTo(ctx context.Context, sink io.WriteCloser) (err error) {
	logger := log.With().Str("module", "stream").Str("kind", string(KindHTTP)).Str("url", s.URL).Logger()
	defer metrics.SessionStarted(string(KindHTTP))()

	defer func() {
		if closeErr := sink.Close(); err == nil && closeErr != nil {
			err = &media.SinkWriteError{Err: closeErr}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return err
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transport.StatusError{URL: s.URL, StatusCode: resp.StatusCode}
	}

	w := &sinkWriter{w: sink}
	n, err := io.Copy(w, resp.Body)
	metrics.ObserveSegmentWritten(string(KindHTTP), int(n))

	if err != nil {
		if w.err != nil {
			return &media.SinkWriteError{Err: w.err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	logger.Info().Int64("bytes", n).Msg("stream finished")
	return nil
}

// sinkWriter remembers write errors to tell them apart from read errors.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}
