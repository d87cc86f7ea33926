package segmented

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const testBase = "http://example.com/live"

// plainLoader always returns the same window and schedules no reloads.
type plainLoader struct {
	pl *media.MediaPlaylist
}

func (l plainLoader) Load(context.Context) (*media.MediaPlaylist, error) {
	return l.pl, nil
}

func newTestQueue(config Config, loader Loader, discard DiscardFunc) *Queue {
	return newQueue(zerolog.Nop(), config.withDefaultValues(), loader, discard, "test", newIdentitySet())
}

func runQueue(t *testing.T, q *Queue) ([]media.Segment, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan media.Segment)
	done := make(chan error, 1)
	go func() {
		err := q.Run(ctx, out)
		close(out)
		done <- err
	}()

	var segments []media.Segment
	for seg := range out {
		segments = append(segments, seg)
	}
	return segments, <-done
}

func sequences(segments []media.Segment) []int64 {
	out := make([]int64, 0, len(segments))
	for _, s := range segments {
		out = append(out, s.Sequence)
	}
	return out
}

func TestQueueWindows(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		windows []*media.MediaPlaylist
		want    []int64
	}{
		{
			name:    "vod",
			windows: []*media.MediaPlaylist{window(testBase, true, sequenceRange(0, 4)...)},
			want:    sequenceRange(0, 4),
		},
		{
			name: "live edge",
			windows: []*media.MediaPlaylist{
				window(testBase, false, sequenceRange(0, 9)...),
				window(testBase, true, sequenceRange(0, 10)...),
			},
			want: []int64{7, 8, 9, 10},
		},
		{
			name: "live edge after empty first window",
			windows: []*media.MediaPlaylist{
				window(testBase, false),
				window(testBase, false, sequenceRange(0, 9)...),
				window(testBase, true, sequenceRange(0, 10)...),
			},
			want: []int64{7, 8, 9, 10},
		},
		{
			name:   "live restart",
			config: Config{LiveRestart: true},
			windows: []*media.MediaPlaylist{
				window(testBase, false, sequenceRange(0, 4)...),
				window(testBase, true, sequenceRange(2, 5)...),
			},
			want: sequenceRange(0, 5),
		},
		{
			name:   "overlapping and rewinding windows",
			config: Config{LiveRestart: true},
			windows: []*media.MediaPlaylist{
				window(testBase, false, 1, 2, 3),
				window(testBase, false, 2, 3, 4),
				window(testBase, false, 2, 3),
				window(testBase, true, 4, 5, 6),
			},
			want: sequenceRange(1, 6),
		},
		{
			name:    "vod start offset",
			config:  Config{StartOffset: 3 * time.Second},
			windows: []*media.MediaPlaylist{window(testBase, true, sequenceRange(0, 9)...)},
			want:    sequenceRange(3, 9),
		},
		{
			name:   "live start offset rewinds from the end",
			config: Config{StartOffset: 2 * time.Second},
			windows: []*media.MediaPlaylist{
				window(testBase, false, sequenceRange(0, 9)...),
				window(testBase, true, sequenceRange(0, 10)...),
			},
			want: sequenceRange(7, 10),
		},
		{
			name:    "duration limit",
			config:  Config{DurationLimit: 3 * time.Second},
			windows: []*media.MediaPlaylist{window(testBase, true, sequenceRange(0, 9)...)},
			want:    []int64{0, 1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &scriptedLoader{windows: tt.windows}
			q := newTestQueue(tt.config, loader, nil)

			segments, err := runQueue(t, q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sequences(segments))
			assert.Equal(t, StateEnded, q.State())
		})
	}
}

func TestQueueNeverReemits(t *testing.T) {
	loader := &scriptedLoader{windows: []*media.MediaPlaylist{
		window(testBase, false, 1, 2, 3),
		window(testBase, false, 1, 2, 3),
		window(testBase, false, 2, 3, 4),
		window(testBase, false, 3, 4, 5),
		window(testBase, true, 3, 4, 5, 6),
	}}
	q := newTestQueue(Config{LiveRestart: true}, loader, nil)

	segments, err := runQueue(t, q)
	require.NoError(t, err)

	seen := map[media.Identity]int{}
	for _, s := range segments {
		seen[s.Identity()]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "identity %s emitted %d times", id, n)
	}
	assert.Equal(t, sequenceRange(1, 6), sequences(segments))
	assert.True(t, q.emitted.has(media.Identity{Sequence: 6, URI: testBase + "/seg6.ts"}))
}

func TestQueueInitSegment(t *testing.T) {
	withInit := func(uri string, pl *media.MediaPlaylist) *media.MediaPlaylist {
		section := media.Segment{Sequence: pl.Segments[0].Sequence, URI: testBase + "/" + uri, Init: true}
		pl.Segments = append([]media.Segment{section}, pl.Segments...)
		return pl
	}

	loader := &scriptedLoader{windows: []*media.MediaPlaylist{
		withInit("a.mp4", window(testBase, false, 1, 2)),
		withInit("a.mp4", window(testBase, false, 2, 3)),
		withInit("b.mp4", window(testBase, true, 3, 4)),
	}}
	q := newTestQueue(Config{LiveRestart: true}, loader, nil)

	segments, err := runQueue(t, q)
	require.NoError(t, err)

	var got []string
	for _, s := range segments {
		got = append(got, s.URI[len(testBase)+1:])
	}
	assert.Equal(t, []string{"a.mp4", "seg1.ts", "seg2.ts", "seg3.ts", "b.mp4", "seg4.ts"}, got)
}

func TestQueueDiscard(t *testing.T) {
	pl := window(testBase, true, sequenceRange(0, 5)...)
	pl.Segments[2].Title = "Amazon"
	pl.Segments[3].Title = "Amazon"

	discard := func(_ *media.MediaPlaylist, seg media.Segment) bool {
		return seg.Title == "Amazon"
	}
	q := newTestQueue(Config{}, &scriptedLoader{windows: []*media.MediaPlaylist{pl}}, discard)

	segments, err := runQueue(t, q)
	require.NoError(t, err)
	require.Len(t, segments, 6)

	var discarded []int64
	for _, s := range segments {
		if s.Discard {
			discarded = append(discarded, s.Sequence)
		}
	}
	assert.Equal(t, []int64{2, 3}, discarded)
	assert.False(t, q.filtering)
}

func TestQueueEmptyReloads(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		calls  int
	}{
		{
			name:   "max empty reloads",
			config: Config{LiveRestart: true, MaxEmptyReloads: 2},
			calls:  4,
		},
		{
			name:   "derived from stream timeout",
			config: Config{LiveRestart: true, StreamTimeout: 30 * time.Millisecond},
			calls:  5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(testBase, false, 1, 2, 3)}}
			q := newTestQueue(tt.config, loader, nil)

			segments, err := runQueue(t, q)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3}, sequences(segments))
			assert.Equal(t, tt.calls, loader.Calls())
			assert.Equal(t, StateEnded, q.State())
		})
	}
}

func TestQueueReloadFailures(t *testing.T) {
	reloadErr := errors.New("connection reset")

	t.Run("recovers", func(t *testing.T) {
		loader := &scriptedLoader{
			windows: []*media.MediaPlaylist{
				window(testBase, false, 1, 2),
				window(testBase, false, 1, 2),
				window(testBase, true, 2, 3),
			},
			errs: map[int]error{1: reloadErr},
		}
		q := newTestQueue(Config{LiveRestart: true}, loader, nil)

		segments, err := runQueue(t, q)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, sequences(segments))
	})

	t.Run("gives up", func(t *testing.T) {
		loader := &scriptedLoader{
			windows: []*media.MediaPlaylist{window(testBase, false, 1, 2)},
			errs:    map[int]error{1: reloadErr, 2: reloadErr, 3: reloadErr},
		}
		q := newTestQueue(Config{LiveRestart: true, PlaylistReloadAttempts: 3}, loader, nil)

		segments, err := runQueue(t, q)
		assert.ErrorIs(t, err, reloadErr)
		assert.Equal(t, []int64{1, 2}, sequences(segments))
		assert.Equal(t, StateFailed, q.State())
		assert.Equal(t, 4, loader.Calls())
	})

	t.Run("first load", func(t *testing.T) {
		malformed := &media.MalformedManifestError{Line: 1, Reason: "missing header"}
		loader := &scriptedLoader{
			windows: []*media.MediaPlaylist{window(testBase, true, 1)},
			errs:    map[int]error{0: malformed},
		}
		q := newTestQueue(Config{}, loader, nil)

		segments, err := runQueue(t, q)
		var mErr *media.MalformedManifestError
		assert.True(t, errors.As(err, &mErr))
		assert.Empty(t, segments)
		assert.Equal(t, 1, loader.Calls())
	})
}

func TestQueueCancel(t *testing.T) {
	loader := &scriptedLoader{
		windows:  []*media.MediaPlaylist{window(testBase, false, 1)},
		interval: time.Hour,
	}
	q := newTestQueue(Config{MaxEmptyReloads: 100}, loader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan media.Segment, 10)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, out)
	}()

	<-out
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queue did not stop after cancellation")
	}
}

func TestReloadInterval(t *testing.T) {
	live := func(target float64, durations ...float64) *media.MediaPlaylist {
		pl := &media.MediaPlaylist{TargetDuration: target}
		for i, d := range durations {
			pl.Segments = append(pl.Segments, media.Segment{Sequence: int64(i), Duration: d})
		}
		return pl
	}

	tests := []struct {
		name   string
		pl     *media.MediaPlaylist
		config Config
		want   time.Duration
	}{
		{
			name: "target duration",
			pl:   live(4, 2, 2, 2),
			want: 4 * time.Second,
		},
		{
			name:   "segment override",
			pl:     live(4, 2, 2, 3),
			config: Config{ReloadTime: "segment"},
			want:   3 * time.Second,
		},
		{
			name:   "live edge override",
			pl:     live(4, 1, 2, 3, 4),
			config: Config{ReloadTime: "live-edge"},
			want:   7 * time.Second,
		},
		{
			name:   "numeric override",
			pl:     live(4, 2),
			config: Config{ReloadTime: "2.5"},
			want:   2500 * time.Millisecond,
		},
		{
			name:   "numeric override below minimum is ignored",
			pl:     live(4, 2),
			config: Config{ReloadTime: "1"},
			want:   4 * time.Second,
		},
		{
			name: "segments behind live edge",
			pl:   live(0, 1, 1.5, 2.5),
			want: 4 * time.Second,
		},
		{
			name: "fallback without target duration",
			pl:   live(0, 0, 0),
			want: 6 * time.Second,
		},
		{
			name: "fallback for empty window",
			pl:   live(0),
			want: 6 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reloadInterval(tt.pl, tt.config.withDefaultValues())
			if got != tt.want {
				t.Errorf("reloadInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueueReloadFallback(t *testing.T) {
	// live playlist without target duration and unparseable durations
	pl := &media.MediaPlaylist{
		Segments: []media.Segment{
			{Sequence: 1, URI: testBase + "/seg1.ts"},
			{Sequence: 2, URI: testBase + "/seg2.ts"},
		},
	}
	require.True(t, pl.Live())

	q := newTestQueue(Config{}, plainLoader{pl: pl}, nil)
	q.load(context.Background())

	assert.Equal(t, StateEmitting, q.State())
	assert.Equal(t, 6*time.Second, q.interval)

	// unchanged window halves the interval
	q.load(context.Background())
	assert.Equal(t, 3*time.Second, q.interval)
}

func TestQueueUnchangedMinimumInterval(t *testing.T) {
	pl := window(testBase, false, 1, 2)

	q := newTestQueue(Config{}, plainLoader{pl: pl}, nil)
	q.load(context.Background())
	assert.Equal(t, time.Second, q.interval)

	q.load(context.Background())
	assert.Equal(t, time.Second, q.interval)
}
