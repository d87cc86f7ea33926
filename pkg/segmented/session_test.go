package segmented

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

func runSession(t *testing.T, config Config, loader Loader, opts Options) (*sink, error) {
	t.Helper()

	out := &sink{}
	session := NewSession(&config, loader, out, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := session.Run(ctx)
	assert.Equal(t, int32(1), out.Closes())
	return out, err
}

func TestSessionVODOrdered(t *testing.T) {
	// later segments respond faster
	srv := newSegmentServer(func(w http.ResponseWriter, r *http.Request, n int) bool {
		time.Sleep(time.Duration(10-n) * 5 * time.Millisecond)
		return false
	})
	defer srv.Close()

	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, sequenceRange(0, 9)...)}}

	out, err := runSession(t, Config{Threads: 4}, loader, Options{Kind: "hls"})
	require.NoError(t, err)
	assert.Equal(t, contents(sequenceRange(0, 9)...), out.String())
}

func TestSessionLiveNoDuplicates(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	loader := &scriptedLoader{windows: []*media.MediaPlaylist{
		window(srv.URL, false, 1, 2, 3),
		window(srv.URL, false, 2, 3, 4),
		window(srv.URL, false, 3, 4, 5),
		window(srv.URL, true, 4, 5, 6),
	}}

	out, err := runSession(t, Config{Threads: 2, LiveRestart: true}, loader, Options{})
	require.NoError(t, err)
	assert.Equal(t, contents(1, 2, 3, 4, 5, 6), out.String())

	for n := 1; n <= 6; n++ {
		assert.Equal(t, 1, srv.Requests(fmt.Sprintf("/seg%d.ts", n)), "segment %d", n)
	}
}

func TestSessionDiscard(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, sequenceRange(0, 5)...)}}
	discard := func(_ *media.MediaPlaylist, seg media.Segment) bool {
		return seg.Sequence == 2 || seg.Sequence == 3
	}

	out, err := runSession(t, Config{}, loader, Options{Discard: discard})
	require.NoError(t, err)
	assert.Equal(t, contents(0, 1, 4, 5), out.String())

	// discarded segments are still downloaded
	assert.Equal(t, 1, srv.Requests("/seg2.ts"))
	assert.Equal(t, 1, srv.Requests("/seg3.ts"))
}

func TestSessionRetry(t *testing.T) {
	var srv *segmentServer
	srv = newSegmentServer(func(w http.ResponseWriter, r *http.Request, n int) bool {
		if n == 1 && srv.Requests(r.URL.Path) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		return false
	})
	defer srv.Close()

	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, 0, 1, 2)}}

	out, err := runSession(t, Config{SegmentAttempts: 3}, loader, Options{})
	require.NoError(t, err)
	assert.Equal(t, contents(0, 1, 2), out.String())
	assert.Equal(t, 3, srv.Requests("/seg1.ts"))
}

func TestSessionSegmentFailure(t *testing.T) {
	tests := []struct {
		name     string
		failFast bool
		want     string
	}{
		{
			name: "skipped",
			want: contents(0, 2),
		},
		{
			name:     "fail fast",
			failFast: true,
			want:     contents(0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSegmentServer(func(w http.ResponseWriter, r *http.Request, n int) bool {
				if n == 1 {
					w.WriteHeader(http.StatusNotFound)
					return true
				}
				return false
			})
			defer srv.Close()

			loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, 0, 1, 2)}}
			config := Config{SegmentAttempts: 2, FailFast: tt.failFast}

			out, err := runSession(t, config, loader, Options{})
			if tt.failFast {
				var fetchErr *media.SegmentFetchError
				require.True(t, errors.As(err, &fetchErr), "got %v", err)
				assert.Equal(t, int64(1), fetchErr.Sequence)
				assert.Equal(t, 2, fetchErr.Attempts)
				assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, 2, srv.Requests("/seg1.ts"))
		})
	}
}

func TestSessionEncrypted(t *testing.T) {
	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testKey)
	}))
	defer keys.Close()

	srv := newSegmentServer(func(w http.ResponseWriter, r *http.Request, n int) bool {
		data, err := Encrypt([]byte(content(int64(n))), testKey, IV(nil, int64(n)))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		_, _ = w.Write(data)
		return true
	})
	defer srv.Close()

	pl := window(srv.URL, true, 0, 1, 2, 3)
	for i := range pl.Segments {
		pl.Segments[i].Key = &media.EncryptionKey{Method: media.MethodAES128, URI: keys.URL + "/key"}
	}

	out, err := runSession(t, Config{Threads: 2}, &scriptedLoader{windows: []*media.MediaPlaylist{pl}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, contents(0, 1, 2, 3), out.String())
}

func TestSessionDecryptThreshold(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	// key uri is not served
	pl := window(srv.URL, true, sequenceRange(0, 5)...)
	for i := range pl.Segments {
		pl.Segments[i].Key = &media.EncryptionKey{Method: media.MethodAES128, URI: srv.URL + "/missing.key"}
	}

	out, err := runSession(t, Config{DecryptFailureThreshold: 2}, &scriptedLoader{windows: []*media.MediaPlaylist{pl}}, Options{})
	var decryptErr *media.SegmentDecryptError
	require.True(t, errors.As(err, &decryptErr), "got %v", err)
	assert.Equal(t, int64(2), decryptErr.Sequence)
	assert.Empty(t, out.String())
}

type failingSink struct {
	closes int
}

func (s *failingSink) Write([]byte) (int, error) { return 0, io.ErrShortWrite }
func (s *failingSink) Close() error              { s.closes++; return nil }

func TestSessionSinkFailure(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	out := &failingSink{}
	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, 0, 1, 2)}}
	session := NewSession(&Config{}, loader, out, Options{})

	err := session.Run(context.Background())
	var sinkErr *media.SinkWriteError
	require.True(t, errors.As(err, &sinkErr), "got %v", err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.True(t, media.IsFatal(err))
	assert.Equal(t, 1, out.closes)
}

// blockingSink holds the first write until release is closed.
type blockingSink struct {
	sink

	once    sync.Once
	writing chan struct{}
	release chan struct{}
}

func (s *blockingSink) Write(p []byte) (int, error) {
	s.once.Do(func() { close(s.writing) })
	<-s.release
	return s.sink.Write(p)
}

func TestSessionBackpressure(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	requested := func() int {
		n := 0
		for i := 0; i < 10; i++ {
			n += srv.Requests(fmt.Sprintf("/seg%d.ts", i))
		}
		return n
	}

	out := &blockingSink{writing: make(chan struct{}), release: make(chan struct{})}
	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, sequenceRange(0, 9)...)}}
	session := NewSession(&Config{Threads: 4, MaxInFlight: 2}, loader, out, Options{})

	done := make(chan error, 1)
	go func() {
		done <- session.Run(context.Background())
	}()

	select {
	case <-out.writing:
	case <-time.After(5 * time.Second):
		t.Fatal("first segment was not written")
	}

	// give idle threads time to pick up more segments
	time.Sleep(200 * time.Millisecond)

	// the segment held by the sink plus MaxInFlight waiting ones
	assert.LessOrEqual(t, requested(), 3)

	close(out.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	assert.Equal(t, contents(sequenceRange(0, 9)...), out.String())
	assert.Equal(t, 10, requested())
	assert.Equal(t, int32(1), out.Closes())
}

func TestSessionCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan int, 10)

	srv := newSegmentServer(func(w http.ResponseWriter, r *http.Request, n int) bool {
		started <- n
		select {
		case <-r.Context().Done():
		case <-release:
		}
		return true
	})
	defer srv.Close()
	defer close(release)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	defer client.CloseIdleConnections()

	out := &sink{}
	loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, false, sequenceRange(0, 4)...)}}
	session := NewSession(&Config{Threads: 5, LiveRestart: true}, loader, out, Options{Client: client})

	done := make(chan error, 1)
	go func() {
		done <- session.Run(context.Background())
	}()

	for i := 0; i < 5; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("segment requests did not start")
		}
	}

	require.NoError(t, session.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, media.ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}

	assert.Equal(t, int32(1), out.Closes())
	assert.Empty(t, out.String())

	// closing again is a no-op
	assert.NoError(t, session.Close())
	assert.Equal(t, int32(1), out.Closes())
}

func TestSessionContextCancel(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	loader := &scriptedLoader{
		windows:  []*media.MediaPlaylist{window(srv.URL, false, 0, 1)},
		interval: time.Hour,
	}
	out := &sink{}
	session := NewSession(&Config{LiveRestart: true, MaxEmptyReloads: 10}, loader, out, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := session.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, contents(0, 1), out.String())
	assert.Equal(t, int32(1), out.Closes())
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("closed before run", func(t *testing.T) {
		out := &sink{}
		session := NewSession(&Config{}, &scriptedLoader{}, out, Options{})
		assert.NotEmpty(t, session.ID())

		require.NoError(t, session.Close())
		assert.ErrorIs(t, session.Run(context.Background()), media.ErrSessionClosed)
		assert.Equal(t, int32(1), out.Closes())
	})

	t.Run("run twice", func(t *testing.T) {
		srv := newSegmentServer(nil)
		defer srv.Close()

		loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, 0)}}
		session := NewSession(&Config{}, loader, &sink{}, Options{})

		require.NoError(t, session.Run(context.Background()))
		assert.ErrorIs(t, session.Run(context.Background()), ErrAlreadyStarted)
		assert.Equal(t, StateEnded, session.State())
	})
}

func TestReader(t *testing.T) {
	srv := newSegmentServer(nil)
	defer srv.Close()

	t.Run("reads stream", func(t *testing.T) {
		loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, sequenceRange(0, 4)...)}}
		r := NewReader(context.Background(), &Config{Threads: 2}, loader, Options{})

		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, contents(sequenceRange(0, 4)...), string(data))
		assert.NoError(t, r.Close())
	})

	t.Run("reports failure", func(t *testing.T) {
		malformed := &media.MalformedManifestError{Reason: "missing header"}
		loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, true, 0)}, errs: map[int]error{0: malformed}}
		r := NewReader(context.Background(), &Config{}, loader, Options{})
		defer r.Close()

		_, err := io.ReadAll(r)
		var mErr *media.MalformedManifestError
		assert.True(t, errors.As(err, &mErr), "got %v", err)
	})

	t.Run("close while reading", func(t *testing.T) {
		loader := &scriptedLoader{windows: []*media.MediaPlaylist{window(srv.URL, false, 0)}, interval: time.Hour}
		r := NewReader(context.Background(), &Config{MaxEmptyReloads: 10}, loader, Options{})

		buf := make([]byte, 3)
		_, err := io.ReadFull(r, buf)
		require.NoError(t, err)
		assert.Equal(t, content(0), string(buf))

		require.NoError(t, r.Close())
		assert.Equal(t, StateWaitingReload, r.Session().State())
	})
}
