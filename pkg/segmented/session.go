package segmented

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/oe-mirrors/streamlink-27/internal/metrics"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

var ErrAlreadyStarted = errors.New("session already started")

// Session owns one run of a segmented stream: the queue, the fetch worker
// and the writer, together with emitted identities and the key cache.
type Session struct {
	logger zerolog.Logger
	config Config
	id     string
	kind   string

	sink    *onceCloser
	keys    *KeyCache
	emitted *identitySet

	queue  *Queue
	worker *Worker
	writer *Writer

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(config *Config, loader Loader, sink io.WriteCloser, opts Options) *Session {
	cfg := config.withDefaultValues()

	kind := opts.Kind
	if kind == "" {
		kind = "segmented"
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	id := uuid.New().String()
	logger := log.With().
		Str("module", "segmented").
		Str("session", id).
		Str("kind", kind).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		logger:  logger,
		config:  cfg,
		id:      id,
		kind:    kind,
		sink:    newOnceCloser(sink),
		keys:    NewKeyCache(HTTPKeyFetcher(client, cfg.SegmentAttempts)),
		emitted: newIdentitySet(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.queue = newQueue(logger, cfg, loader, opts.Discard, kind, s.emitted)
	s.worker = newWorker(logger, NewFetcher(logger, client, cfg), NewDecryptor(s.keys), cfg.Threads, kind)
	s.writer = newWriter(logger, s.sink, cfg, kind)

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return s.queue.State()
}

// Run streams segments into the sink until the stream ends, fails, ctx is
// cancelled or Close is called. The sink is closed before Run returns.
// A clean end of stream returns nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)
	defer s.keys.Close()

	if s.closed.Load() {
		_ = s.sink.Close()
		return media.ErrSessionClosed
	}

	defer metrics.SessionStarted(s.kind)()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.logger.Info().Msg("session started")

	g, gctx := errgroup.WithContext(ctx)

	// unblock a writer stuck on a slow sink
	unblock := context.AfterFunc(gctx, func() {
		_ = s.sink.Close()
	})
	defer unblock()

	segments := make(chan media.Segment)
	results := make(chan *result, s.config.MaxInFlight)

	g.Go(func() error {
		defer close(segments)
		return s.queue.Run(gctx, segments)
	})

	g.Go(func() error {
		defer close(results)
		return s.worker.Run(gctx, segments, results)
	})

	g.Go(func() error {
		return s.writer.Run(gctx, results)
	})

	err := g.Wait()
	closeErr := s.sink.Close()

	if s.closed.Load() {
		err = media.ErrSessionClosed
	} else if err == nil && closeErr != nil {
		err = &media.SinkWriteError{Err: closeErr}
	}

	logger := s.logger.With().
		Int("segments", s.emitted.len()).
		Int64("bytes", s.writer.Written()).
		Str("state", s.queue.State().String()).
		Logger()
	if err != nil && !errors.Is(err, media.ErrSessionClosed) {
		logger.Err(err).Msg("session failed")
	} else {
		logger.Info().Msg("session finished")
	}

	return err
}

// Close cancels the session and waits until all its goroutines returned.
// It is safe to call from any goroutine and more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})

	if !s.started.Load() {
		return s.sink.Close()
	}

	<-s.done
	return nil
}
