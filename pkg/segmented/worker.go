package segmented

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oe-mirrors/streamlink-27/internal/metrics"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// result is a pending segment. done is closed once data or err is set.
type result struct {
	segment media.Segment
	data    []byte
	err     error
	done    chan struct{}
}

func newResult(seg media.Segment) *result {
	return &result{
		segment: seg,
		done:    make(chan struct{}),
	}
}

// Worker fetches and decrypts segments concurrently. Results are queued
// in the order segments arrive, the results channel capacity bounds the
// number of segments held in memory.
type Worker struct {
	logger    zerolog.Logger
	fetcher   *Fetcher
	decryptor *Decryptor
	threads   int
	kind      string
}

func newWorker(logger zerolog.Logger, fetcher *Fetcher, decryptor *Decryptor, threads int, kind string) *Worker {
	return &Worker{
		logger:    logger.With().Str("submodule", "worker").Logger(),
		fetcher:   fetcher,
		decryptor: decryptor,
		threads:   threads,
		kind:      kind,
	}
}

func (w *Worker) Run(ctx context.Context, segments <-chan media.Segment, results chan<- *result) error {
	var pool errgroup.Group
	pool.SetLimit(w.threads)
	defer func() {
		_ = pool.Wait()
	}()

	for {
		var seg media.Segment
		var ok bool

		select {
		case seg, ok = <-segments:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		res := newResult(seg)

		// blocks while too many segments await delivery
		select {
		case results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}

		pool.Go(func() error {
			defer close(res.done)
			res.data, res.err = w.process(ctx, res.segment)
			return nil
		})
	}
}

func (w *Worker) process(ctx context.Context, seg media.Segment) ([]byte, error) {
	start := time.Now()

	data, err := w.fetcher.Fetch(ctx, seg)
	if err != nil {
		if ctx.Err() == nil {
			metrics.IncSegmentFailed(w.kind)
		}
		return nil, err
	}

	metrics.ObserveSegmentFetched(w.kind, time.Since(start))
	w.logger.Debug().
		Int64("sequence", seg.Sequence).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("segment fetched")

	data, err = w.decryptor.Decrypt(ctx, seg, data)
	if err != nil && ctx.Err() == nil {
		metrics.IncDecryptFailure(w.kind)
	}
	return data, err
}
