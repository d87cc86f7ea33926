package segmented

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// Fetcher downloads segments, retrying failed requests with the same
// parameters.
type Fetcher struct {
	logger   zerolog.Logger
	client   *http.Client
	attempts int
	timeout  time.Duration
	limiter  *rate.Limiter
}

func NewFetcher(logger zerolog.Logger, client *http.Client, config Config) *Fetcher {
	config = config.withDefaultValues()

	f := &Fetcher{
		logger:   logger.With().Str("submodule", "fetcher").Logger(),
		client:   client,
		attempts: config.SegmentAttempts,
		timeout:  config.SegmentTimeout,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if config.RequestRate > 0 {
		burst := int(config.RequestRate)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(config.RequestRate), burst)
	}
	return f
}

// Fetch returns body of the segment. Exhausted retries are reported as
// SegmentFetchError, cancellation as the context error.
func (f *Fetcher) Fetch(ctx context.Context, seg media.Segment) ([]byte, error) {
	if err := waitUntil(ctx, seg.AvailableAt); err != nil {
		return nil, err
	}

	fetchErr := &media.SegmentFetchError{
		Sequence: seg.Sequence,
		URI:      seg.URI,
	}

	for attempt := 1; attempt <= f.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, status, err := f.fetchOnce(ctx, seg)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fetchErr.Attempts = attempt
		fetchErr.StatusCode = status
		fetchErr.Err = err

		f.logger.Debug().
			Err(err).
			Int64("sequence", seg.Sequence).
			Int("attempt", attempt).
			Msg("segment request failed")
	}

	return nil, fetchErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, seg media.Segment) ([]byte, int, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URI, nil)
	if err != nil {
		return nil, 0, err
	}
	if seg.ByteRange != nil {
		req.Header.Set("Range", seg.ByteRange.Header())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	// server ignored the range request
	if seg.ByteRange != nil && seg.ByteRange.Length > 0 && resp.StatusCode == http.StatusOK {
		end := seg.ByteRange.End()
		if int64(len(data)) < end {
			return nil, resp.StatusCode, errors.New("response shorter than requested range")
		}
		data = data[seg.ByteRange.Offset:end]
	}

	return data, resp.StatusCode, nil
}

func waitUntil(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}

	wait := time.Until(t)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
