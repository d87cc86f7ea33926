package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/pkg/dash"
	"github.com/oe-mirrors/streamlink-27/pkg/hls"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/selector"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

// how much of an unknown resource is read to detect its format
const sniffSize = 512

// manifests larger than this are rejected
const maxManifestSize = 16 << 20

const (
	schemeHLS         = "hls://"
	schemeHLSVariant  = "hlsvariant://"
	schemeDASH        = "dash://"
	schemeHTTP        = "httpstream://"
	schemeMuxedStream = "muxedstream://"
)

// Source is a resolved URL together with its parsed manifest.
type Source struct {
	URL      string
	Kind     Kind
	Manifest *media.Manifest
	opts     Options
}

// Resolve detects the kind of url, fetches and parses its manifest and
// names its variants. Explicit scheme prefixes (hls://, dash://,
// httpstream://, muxedstream://) skip detection.
func Resolve(ctx context.Context, rawURL string, opts Options) (*Source, error) {
	opts = opts.withDefaultValues()
	logger := log.With().Str("module", "stream").Str("url", rawURL).Logger()

	kind, target, err := detect(rawURL, opts.Text)
	if err != nil {
		return nil, err
	}

	if kind == KindMuxed {
		return muxedSource(target, opts)
	}

	text := opts.Text
	if kind == "" {
		var data []byte
		kind, data, target, err = sniff(ctx, opts.Client, target)
		if err != nil {
			return nil, err
		}
		text = string(data)
	}

	s := &Source{URL: target, Kind: kind, opts: opts}

	switch kind {
	case KindHLS:
		s.Manifest, err = hls.FetchManifest(ctx, opts.Client, target, text, opts.attempts(), opts.Names)
	case KindDASH:
		_, s.Manifest, err = dash.FetchManifest(ctx, opts.Client, target, text, opts.attempts())
	case KindHTTP:
		s.Manifest = &media.Manifest{
			URL:      target,
			BaseURL:  target,
			Variants: []*media.Variant{{Name: "live", URI: target}},
		}
	}
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("kind", string(kind)).
		Strs("variants", s.Manifest.Names()).
		Msg("manifest resolved")

	return s, nil
}

// detect returns the kind given by a scheme prefix, extension or inline
// text. An empty kind means the resource must be sniffed.
func detect(rawURL, text string) (Kind, string, error) {
	prefixes := []struct {
		prefix string
		kind   Kind
	}{
		{schemeHLSVariant, KindHLS},
		{schemeHLS, KindHLS},
		{schemeDASH, KindDASH},
		{schemeHTTP, KindHTTP},
		{schemeMuxedStream, KindMuxed},
	}

	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(rawURL, p.prefix); ok {
			return p.kind, withScheme(rest), nil
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid url: %w", err)
	}

	if text != "" {
		return sniffKind([]byte(text)), rawURL, nil
	}

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u8", ".m3u":
		return KindHLS, rawURL, nil
	case ".mpd":
		return KindDASH, rawURL, nil
	}
	return "", rawURL, nil
}

func withScheme(u string) string {
	if strings.Contains(u, "://") {
		return u
	}
	return "http://" + u
}

func sniffKind(data []byte) Kind {
	head := bytes.TrimSpace(data)
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}

	switch {
	case bytes.HasPrefix(head, []byte("#EXTM3U")):
		return KindHLS
	case bytes.Contains(head, []byte("<MPD")):
		return KindDASH
	default:
		return KindHTTP
	}
}

// sniff reads the start of the resource. Manifests are read whole, other
// resources are left for progressive download.
func sniff(ctx context.Context, client *http.Client, rawURL string) (Kind, []byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, "", &transport.StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	final := resp.Request.URL.String()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, "", err
	}
	head = head[:n]

	kind := sniffKind(head)
	if kind == KindHTTP {
		return kind, nil, final, nil
	}

	rest, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return "", nil, "", err
	}
	return kind, append(head, rest...), final, nil
}

// muxedSource handles muxedstream://VIDEO?audio=AUDIO&quality=NAME.
func muxedSource(target string, opts Options) (*Source, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	query := u.Query()
	audio := query.Get("audio")
	quality := query.Get("quality")
	query.Del("audio")
	query.Del("quality")
	u.RawQuery = query.Encode()

	if audio == "" {
		return nil, fmt.Errorf("muxed stream %s has no audio url", target)
	}
	if quality == "" {
		quality = "unknown"
	}

	video := u.String()
	return &Source{
		URL:  video,
		Kind: KindMuxed,
		Manifest: &media.Manifest{
			URL:     video,
			BaseURL: video,
			Variants: []*media.Variant{{
				Name:  quality,
				URI:   video,
				Audio: []*media.Variant{{Name: "audio", URI: withScheme(audio)}},
			}},
		},
		opts: opts,
	}, nil
}

// Names returns variant names, unranked variants first, then ranked ones
// from worst to best.
func (s *Source) Names() ([]string, error) {
	sorted, err := selector.Sorted(s.Manifest.Variants, s.opts.Selector, false)
	if err != nil {
		return nil, err
	}

	ranked := map[*media.Variant]bool{}
	for _, v := range sorted {
		ranked[v] = true
	}

	names := make([]string, 0, len(s.Manifest.Variants))
	for _, v := range s.Manifest.Variants {
		if !ranked[v] {
			names = append(names, v.Name)
		}
	}
	for _, v := range sorted {
		names = append(names, v.Name)
	}
	return names, nil
}

// Select resolves token to the best matching variant.
func (s *Source) Select(token string) (*media.Variant, error) {
	variants, err := selector.Select(s.Manifest.Variants, token, s.opts.Selector)
	if err != nil {
		return nil, err
	}
	return variants[0], nil
}

// Stream returns the stream selected by token. Variants with external audio
// are muxed with the selected audio tracks.
func (s *Source) Stream(token string) (Stream, error) {
	v, err := s.Select(token)
	if err != nil {
		return nil, err
	}

	if v.Encrypted {
		return nil, fmt.Errorf("variant %s: %w", v.Name, media.ErrEncrypted)
	}

	switch s.Kind {
	case KindHTTP:
		return NewHTTPStream(v.URI, s.opts), nil
	case KindMuxed:
		streams := []Stream{NewHTTPStream(v.URI, s.opts)}
		for _, a := range v.Audio {
			streams = append(streams, NewHTTPStream(a.URI, s.opts))
		}
		return NewMuxedStream(s.opts.FFmpeg, streams...), nil
	}

	audio := selector.SelectAudio(v, s.opts.Audio)

	var streams []Stream
	for _, track := range append([]*media.Variant{v}, audio...) {
		if s.Kind == KindDASH {
			streams = append(streams, NewDASHStream(track, s.opts))
		} else {
			streams = append(streams, NewHLSStream(track, s.opts))
		}
	}

	if len(streams) == 1 {
		return streams[0], nil
	}
	return NewMuxedStream(s.opts.FFmpeg, streams...), nil
}

// Open resolves url and returns the stream selected by token.
func Open(ctx context.Context, rawURL, token string, opts Options) (Stream, error) {
	s, err := Resolve(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return s.Stream(token)
}

// Streams resolves url and returns its variant names.
func Streams(ctx context.Context, rawURL string, opts Options) ([]string, error) {
	s, err := Resolve(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return s.Names()
}
