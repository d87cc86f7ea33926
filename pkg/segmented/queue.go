package segmented

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oe-mirrors/streamlink-27/internal/metrics"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const minReloadInterval = time.Second

// identitySet holds identities of emitted segments for the whole session.
type identitySet struct {
	mu  sync.Mutex
	ids map[media.Identity]struct{}
}

func newIdentitySet() *identitySet {
	return &identitySet{ids: map[media.Identity]struct{}{}}
}

// add records id and reports whether it was not present before.
func (s *identitySet) add(id media.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *identitySet) has(id media.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[id]
	return ok
}

func (s *identitySet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ids)
}

// Queue walks a possibly growing media playlist and emits every segment
// exactly once, in playlist order.
type Queue struct {
	logger  zerolog.Logger
	config  Config
	loader  Loader
	discard DiscardFunc
	kind    string

	state   State
	stateMu sync.RWMutex
	err     error

	emitted *identitySet

	playlist  *media.MediaPlaylist
	sequences []int64
	next      int64 // first sequence eligible for emission, -1 before first load
	ended     bool  // end list seen

	interval       time.Duration
	emptyReloads   int
	emptyDuration  time.Duration
	reloadFailures int
	emittedTotal   time.Duration
	filtering      bool
	currentInit    *media.Segment
}

func newQueue(logger zerolog.Logger, config Config, loader Loader, discard DiscardFunc, kind string, emitted *identitySet) *Queue {
	return &Queue{
		logger:   logger.With().Str("submodule", "queue").Logger(),
		config:   config,
		loader:   loader,
		discard:  discard,
		kind:     kind,
		emitted:  emitted,
		next:     -1,
		interval: config.ReloadFallback,
	}
}

func (q *Queue) State() State {
	q.stateMu.RLock()
	defer q.stateMu.RUnlock()
	return q.state
}

func (q *Queue) setState(state State) {
	q.stateMu.Lock()
	prev := q.state
	q.state = state
	q.stateMu.Unlock()

	if prev != state {
		q.logger.Trace().Str("from", prev.String()).Str("to", state.String()).Msg("state transition")
	}
}

func (q *Queue) fail(err error) {
	q.err = err
	q.setState(StateFailed)
}

// Run drives the reload state machine and sends segments to out until the
// stream ends, fails or ctx is cancelled.
func (q *Queue) Run(ctx context.Context, out chan<- media.Segment) error {
	q.setState(StateFetchingManifest)

	for {
		switch q.State() {
		case StateFetchingManifest:
			q.load(ctx)
		case StateEmitting:
			if err := q.emit(ctx, out); err != nil {
				return err
			}
		case StateWaitingReload:
			if err := q.wait(ctx); err != nil {
				return err
			}
		case StateEnded:
			return nil
		case StateFailed:
			return q.err
		default:
			return fmt.Errorf("invalid queue state %s", q.State())
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (q *Queue) load(ctx context.Context) {
	first := q.playlist == nil

	pl, err := q.loader.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			q.fail(ctx.Err())
			return
		}

		metrics.IncPlaylistReload(q.kind, false)

		// nothing to fall back to or not recoverable
		if first || errors.Is(err, media.ErrEncrypted) {
			q.fail(err)
			return
		}

		q.reloadFailures++
		if q.reloadFailures >= q.config.PlaylistReloadAttempts {
			q.fail(fmt.Errorf("playlist reload failed %d times: %w", q.reloadFailures, err))
			return
		}

		q.logger.Warn().Err(err).Int("failures", q.reloadFailures).Msg("failed to reload playlist")
		q.setState(StateWaitingReload)
		return
	}

	metrics.IncPlaylistReload(q.kind, true)
	q.reloadFailures = 0
	q.process(pl, first)
	q.setState(StateEmitting)
}

// process computes the next reload interval and the first sequence to
// emit for a freshly loaded window.
func (q *Queue) process(pl *media.MediaPlaylist, first bool) {
	sequences := pl.Sequences()
	changed := first || !equalSequences(q.sequences, sequences)

	q.playlist = pl
	q.sequences = sequences

	if reloader, ok := q.loader.(Reloader); ok {
		q.interval = reloader.NextReload(changed)
	} else {
		q.interval = reloadInterval(pl, q.config)
		if !changed {
			q.interval /= 2
			if q.interval < minReloadInterval {
				q.interval = minReloadInterval
			}
		}
	}

	if !pl.Live() {
		q.ended = true
	}

	if len(pl.Segments) > 0 && pl.Segments[0].Key.Encrypted() {
		q.logger.Debug().Msg("segments in this playlist are encrypted")
	}

	if q.next >= 0 {
		return
	}

	segments := realSegments(pl.Segments)
	if len(segments) == 0 {
		return
	}

	if q.ended || q.config.LiveRestart {
		q.next = segments[0].Sequence
	} else {
		edge := q.config.LiveEdge
		if edge > len(segments) {
			edge = len(segments)
		}
		q.next = segments[len(segments)-edge].Sequence
	}

	if offset := q.config.StartOffset; offset > 0 {
		// live streams rewind from the live edge
		if !q.ended {
			offset = -offset
		}
		q.next = durationToSequence(offset, segments)
	}

	q.logger.Debug().
		Int64("first", segments[0].Sequence).
		Int64("last", segments[len(segments)-1].Sequence).
		Int64("start", q.next).
		Dur("start-offset", q.config.StartOffset).
		Dur("duration", q.config.DurationLimit).
		Bool("endlist", q.ended).
		Msg("playlist window")
}

// emit sends new segments of the current window downstream. The init
// segment preceding an emitted segment is sent once before it.
func (q *Queue) emit(ctx context.Context, out chan<- media.Segment) error {
	added := 0

	for _, seg := range q.playlist.Segments {
		if seg.Init {
			section := seg
			q.currentInit = &section
			continue
		}

		if q.next >= 0 && seg.Sequence < q.next {
			continue
		}
		if !q.emitted.add(seg.Identity()) {
			continue
		}

		if q.currentInit != nil && q.emitted.add(q.currentInit.Identity()) {
			if err := q.send(ctx, out, *q.currentInit); err != nil {
				return err
			}
		}

		if q.discard != nil {
			seg.Discard = q.discard(q.playlist, seg)
		}
		q.logFiltering(seg.Discard)

		if err := q.send(ctx, out, seg); err != nil {
			return err
		}
		added++

		q.next = seg.Sequence + 1
		q.emittedTotal += seg.DurationTime()

		if limit := q.config.DurationLimit; limit > 0 && q.emittedTotal >= limit {
			q.logger.Info().Dur("duration", limit).Msg("stopping stream early")
			q.setState(StateEnded)
			return nil
		}
	}

	if q.ended {
		q.setState(StateEnded)
		return nil
	}

	if added > 0 {
		q.emptyReloads = 0
		q.emptyDuration = 0
	} else if q.emptyBudgetExhausted() {
		q.logger.Info().
			Int("reloads", q.emptyReloads).
			Dur("waited", q.emptyDuration).
			Msg("stream did not advance, ending")
		q.setState(StateEnded)
		return nil
	}

	q.setState(StateWaitingReload)
	return nil
}

func (q *Queue) emptyBudgetExhausted() bool {
	q.emptyReloads++
	q.emptyDuration += q.interval

	if q.config.MaxEmptyReloads > 0 {
		return q.emptyReloads > q.config.MaxEmptyReloads
	}
	return q.emptyDuration > q.config.StreamTimeout
}

func (q *Queue) send(ctx context.Context, out chan<- media.Segment, seg media.Segment) error {
	q.logger.Trace().
		Int64("sequence", seg.Sequence).
		Bool("init", seg.Init).
		Bool("discard", seg.Discard).
		Msg("adding segment to queue")

	select {
	case out <- seg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) logFiltering(discard bool) {
	if discard == q.filtering {
		return
	}
	q.filtering = discard

	if discard {
		q.logger.Info().Msg("filtering out segments and pausing stream output")
	} else {
		q.logger.Info().Msg("resuming stream output")
	}
}

func (q *Queue) wait(ctx context.Context) error {
	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	q.logger.Debug().Dur("interval", q.interval).Msg("waiting for playlist reload")

	select {
	case <-timer.C:
		q.setState(StateFetchingManifest)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reloadInterval picks the wait before the next reload, first matching
// rule wins: reload time override, target duration, duration of the
// segments behind the live edge, fallback.
func reloadInterval(pl *media.MediaPlaylist, config Config) time.Duration {
	segments := realSegments(pl.Segments)

	edgeDuration := func() time.Duration {
		n := config.LiveEdge - 1
		if n < 1 {
			n = 1
		}
		if n > len(segments) {
			n = len(segments)
		}

		var total time.Duration
		for _, s := range segments[len(segments)-n:] {
			total += s.DurationTime()
		}
		return total
	}

	switch config.ReloadTime {
	case "segment":
		if len(segments) > 0 {
			if d := segments[len(segments)-1].DurationTime(); d > 0 {
				return d
			}
		}
	case "live-edge":
		if d := edgeDuration(); d > 0 {
			return d
		}
	case "":
	default:
		if seconds, err := strconv.ParseFloat(config.ReloadTime, 64); err == nil && seconds >= 2 {
			return time.Duration(seconds * float64(time.Second))
		}
	}

	if pl.TargetDuration > 0 {
		return time.Duration(pl.TargetDuration * float64(time.Second))
	}
	if d := edgeDuration(); d > 0 {
		return d
	}
	return config.ReloadFallback
}

// durationToSequence returns sequence found after skipping duration from
// the start, or from the end when duration is negative.
func durationToSequence(duration time.Duration, segments []media.Segment) int64 {
	var elapsed time.Duration
	target := duration
	if target < 0 {
		target = -target
	}

	def := int64(-1)
	for i := range segments {
		s := segments[i]
		if duration < 0 {
			s = segments[len(segments)-1-i]
		}
		if elapsed >= target {
			return s.Sequence
		}
		elapsed += s.DurationTime()
		def = s.Sequence
	}
	return def
}

func realSegments(segments []media.Segment) []media.Segment {
	out := make([]media.Segment, 0, len(segments))
	for _, s := range segments {
		if !s.Init {
			out = append(out, s)
		}
	}
	return out
}

func equalSequences(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
