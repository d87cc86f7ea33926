package segmented

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// sink collects written bytes and counts Close calls.
type sink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closes int32
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *sink) Close() error {
	atomic.AddInt32(&s.closes, 1)
	return nil
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *sink) Closes() int32 {
	return atomic.LoadInt32(&s.closes)
}

// scriptedLoader returns prepared windows in order, repeating the last one.
type scriptedLoader struct {
	mu       sync.Mutex
	windows  []*media.MediaPlaylist
	errs     map[int]error
	calls    int
	interval time.Duration
}

func (l *scriptedLoader) Load(ctx context.Context) (*media.MediaPlaylist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.calls
	l.calls++

	if err, ok := l.errs[i]; ok {
		return nil, err
	}
	if i >= len(l.windows) {
		i = len(l.windows) - 1
	}
	return l.windows[i], nil
}

func (l *scriptedLoader) NextReload(bool) time.Duration {
	if l.interval == 0 {
		return 10 * time.Millisecond
	}
	return l.interval
}

func (l *scriptedLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// segmentServer serves "<n>" for /seg{n}.ts and counts requests per path.
type segmentServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
	handler  func(w http.ResponseWriter, r *http.Request, n int) bool
}

func newSegmentServer(handler func(w http.ResponseWriter, r *http.Request, n int) bool) *segmentServer {
	s := &segmentServer{
		requests: map[string]int{},
		handler:  handler,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *segmentServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	s.mu.Unlock()

	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg"), ".ts")
	n, err := strconv.Atoi(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if s.handler != nil && s.handler(w, r, n) {
		return
	}
	_, _ = w.Write([]byte(content(int64(n))))
}

func (s *segmentServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func content(n int64) string {
	return fmt.Sprintf("<%d>", n)
}

func contents(seqs ...int64) string {
	var b strings.Builder
	for _, n := range seqs {
		b.WriteString(content(n))
	}
	return b.String()
}

// window builds a playlist of one second segments.
func window(base string, endlist bool, seqs ...int64) *media.MediaPlaylist {
	pl := &media.MediaPlaylist{
		URL:            base + "/playlist.m3u8",
		TargetDuration: 1,
		EndList:        endlist,
	}
	for _, n := range seqs {
		pl.Segments = append(pl.Segments, media.Segment{
			Sequence: n,
			URI:      fmt.Sprintf("%s/seg%d.ts", base, n),
			Duration: 1,
		})
	}
	if len(seqs) > 0 {
		pl.MediaSequence = seqs[0]
	}
	return pl
}

func sequenceRange(from, to int64) []int64 {
	var out []int64
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}
