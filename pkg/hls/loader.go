package hls

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

// Loader fetches and parses a media playlist. Every call produces a new
// window, nothing is shared between calls.
type Loader struct {
	logger   zerolog.Logger
	client   *http.Client
	url      string
	attempts int

	mu     sync.Mutex
	inline string
}

func NewLoader(client *http.Client, url string, attempts int) *Loader {
	return &Loader{
		logger:   log.With().Str("module", "hls").Str("submodule", "loader").Logger(),
		client:   client,
		url:      url,
		attempts: attempts,
	}
}

// WithInline makes the first Load parse text instead of fetching the url.
func (l *Loader) WithInline(text string) *Loader {
	l.inline = text
	return l
}

func (l *Loader) URL() string {
	return l.url
}

func (l *Loader) fetch(ctx context.Context) ([]byte, string, error) {
	l.mu.Lock()
	inline := l.inline
	l.inline = ""
	l.mu.Unlock()

	if inline != "" {
		return []byte(inline), l.url, nil
	}
	return transport.GetWithRetry(ctx, l.client, l.url, l.attempts)
}

func (l *Loader) Load(ctx context.Context) (*media.MediaPlaylist, error) {
	data, final, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}

	pl, err := Parse(bytes.NewReader(data), final)
	if err != nil {
		return nil, err
	}

	if pl.IsMaster {
		return nil, &media.MalformedManifestError{
			URL:    l.url,
			Reason: "attempted to play a multivariant playlist as media playlist",
		}
	}

	if pl.IFramesOnly {
		return nil, &media.MalformedManifestError{
			URL:     l.url,
			Element: "EXT-X-I-FRAMES-ONLY",
			Reason:  "streams containing I-frames only are not playable",
		}
	}

	l.logger.Debug().
		Str("url", l.url).
		Int("segments", len(pl.Segments)).
		Int64("sequence", pl.MediaSequence).
		Bool("endlist", pl.EndList).
		Msg("playlist loaded")

	return pl.MediaPlaylist(), nil
}

// FetchManifest fetches and parses the playlist at url. When text is not
// empty it is parsed instead and url is used for resolving only.
func FetchManifest(ctx context.Context, client *http.Client, url, text string, attempts int, opts NameOptions) (*media.Manifest, error) {
	base := url
	data := []byte(text)

	if text == "" {
		var err error
		data, base, err = transport.GetWithRetry(ctx, client, url, attempts)
		if err != nil {
			return nil, err
		}
	}

	pl, err := Parse(bytes.NewReader(data), base)
	if err != nil {
		return nil, err
	}

	m := Manifest(pl, opts)
	if !pl.IsMaster && text != "" {
		m.Variants[0].Inline = text
	}
	return m, nil
}
