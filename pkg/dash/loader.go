package dash

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

const (
	minReloadWait = 5 * time.Second
	maxReloadWait = 10 * time.Second
	reloadBackoff = 1.3
)

// Loader fetches a MPD and resolves segments of one representation.
type Loader struct {
	logger   zerolog.Logger
	client   *http.Client
	url      string
	repID    string
	attempts int
	inline   string
	now      func() time.Time

	mu        sync.Mutex
	mpd       *MPD
	wait      time.Duration
	numbering numbering
}

func NewLoader(client *http.Client, url, repID string, attempts int) *Loader {
	return &Loader{
		logger: log.With().
			Str("module", "dash").
			Str("submodule", "loader").
			Str("representation", repID).
			Logger(),
		client:   client,
		url:      url,
		repID:    repID,
		attempts: attempts,
		now:      time.Now,
	}
}

// WithInline makes the first Load parse text instead of fetching the url.
// Dynamic manifests are still reloaded from the url afterwards.
func (l *Loader) WithInline(text string) *Loader {
	l.inline = text
	return l
}

func (l *Loader) URL() string {
	return l.url
}

func (l *Loader) fetch(ctx context.Context) (*MPD, error) {
	l.mu.Lock()
	inline := l.inline
	l.inline = ""
	l.mu.Unlock()

	if inline != "" {
		return Parse(bytes.NewReader([]byte(inline)), l.url)
	}

	data, final, err := transport.GetWithRetry(ctx, l.client, l.url, l.attempts)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data), final)
}

func (l *Loader) Load(ctx context.Context) (*media.MediaPlaylist, error) {
	mpd, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}

	period, aset, rep, ok := mpd.Representation(l.repID)
	if !ok {
		return nil, &media.MalformedManifestError{
			URL:     l.url,
			Element: "Representation",
			Reason:  fmt.Sprintf("representation %q not found", l.repID),
		}
	}

	if aset.protected() || len(rep.ContentProtections) > 0 {
		return nil, fmt.Errorf("representation %q: %w", l.repID, media.ErrEncrypted)
	}

	segments, err := mpd.Segments(period, aset, rep, SegmentOptions{Now: l.now})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.mpd = mpd
	if mpd.Dynamic() {
		l.numbering.apply(segments)
	}
	l.mu.Unlock()

	pl := &media.MediaPlaylist{
		URL:      mpd.URL,
		Segments: segments,
		EndList:  !mpd.Dynamic(),
	}
	for _, s := range segments {
		if s.Duration > pl.TargetDuration {
			pl.TargetDuration = s.Duration
		}
	}
	if len(segments) > 0 {
		pl.MediaSequence = segments[0].Sequence
	}

	l.logger.Debug().
		Int("segments", len(segments)).
		Bool("dynamic", mpd.Dynamic()).
		Msg("manifest loaded")

	return pl, nil
}

// numbering keeps segment numbers of a dynamic manifest stable across
// reloads. Timelines are numbered from startNumber on every load, which
// stays fixed while the window slides, so segments are matched to the
// previous windows by address instead.
type numbering struct {
	seen map[string]int64
	last int64
}

func (n *numbering) apply(segments []media.Segment) {
	var first *media.Segment
	offset := int64(0)
	anchored := false

	for i := range segments {
		s := &segments[i]
		if s.Init {
			continue
		}
		if first == nil {
			first = s
		}
		if seq, ok := n.seen[s.Identity().URI]; ok {
			offset = seq - s.Sequence
			anchored = true
			break
		}
	}
	if first == nil {
		return
	}

	// no overlap with earlier windows, continue after the last number
	if !anchored && n.seen != nil && first.Sequence <= n.last {
		offset = n.last + 1 - first.Sequence
	}

	if n.seen == nil {
		n.seen = map[string]int64{}
	}

	window := int64(0)
	for i := range segments {
		segments[i].Sequence += offset
		if segments[i].Init {
			continue
		}
		window++
		n.seen[segments[i].Identity().URI] = segments[i].Sequence
		if segments[i].Sequence > n.last {
			n.last = segments[i].Sequence
		}
	}

	// keep about two windows of history
	for uri, seq := range n.seen {
		if seq <= n.last-2*window {
			delete(n.seen, uri)
		}
	}
}

// NextReload returns time to wait before the manifest is fetched again.
// The wait is max(minimumUpdatePeriod, 5s) and grows by a factor of 1.3
// while the manifest stays unchanged, capped at max(minimumUpdatePeriod, 10s).
func (l *Loader) NextReload(changed bool) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	var update time.Duration
	if l.mpd != nil {
		update = l.mpd.MinimumUpdate()
	}

	base := update
	if base < minReloadWait {
		base = minReloadWait
	}
	ceiling := update
	if ceiling < maxReloadWait {
		ceiling = maxReloadWait
	}

	if changed || l.wait == 0 {
		l.wait = base
		return l.wait
	}

	l.wait = time.Duration(float64(l.wait) * reloadBackoff)
	if l.wait > ceiling {
		l.wait = ceiling
	}
	return l.wait
}

// FetchManifest fetches and parses the MPD at url. When text is not empty
// it is parsed instead and url is used for resolving only.
func FetchManifest(ctx context.Context, client *http.Client, url, text string, attempts int) (*MPD, *media.Manifest, error) {
	base := url
	data := []byte(text)

	if text == "" {
		var err error
		data, base, err = transport.GetWithRetry(ctx, client, url, attempts)
		if err != nil {
			return nil, nil, err
		}
	}

	mpd, err := Parse(bytes.NewReader(data), base)
	if err != nil {
		return nil, nil, err
	}

	m := Manifest(mpd)
	if text != "" {
		for _, v := range m.Variants {
			v.Inline = text
		}
	}
	return mpd, m, nil
}
