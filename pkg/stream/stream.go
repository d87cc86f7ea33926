package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/oe-mirrors/streamlink-27/pkg/hls"
	"github.com/oe-mirrors/streamlink-27/pkg/muxer"
	"github.com/oe-mirrors/streamlink-27/pkg/segmented"
	"github.com/oe-mirrors/streamlink-27/pkg/selector"
)

type Kind string

const (
	KindHLS   Kind = "hls"
	KindDASH  Kind = "dash"
	KindHTTP  Kind = "http"
	KindMuxed Kind = "muxed"
)

// ContentType of the byte stream written by streams of this kind.
func (k Kind) ContentType() string {
	switch k {
	case KindHLS:
		return "video/MP2T"
	case KindDASH:
		return "video/mp4"
	case KindMuxed:
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// Stream writes one selected media stream into a sink. WriteTo closes the
// sink before it returns, a clean end of stream returns nil.
type Stream interface {
	Kind() Kind
	WriteTo(ctx context.Context, sink io.WriteCloser) error
}

type Options struct {
	Client    *http.Client
	Session   segmented.Config
	Selector  selector.Options
	Audio     selector.AudioOptions
	Names     hls.NameOptions
	FilterAds bool
	FFmpeg    muxer.FFmpeg

	// manifest text used instead of fetching the url, which is then used
	// only to resolve relative references
	Text string
}

func (o Options) withDefaultValues() Options {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	return o
}

// attempts for manifest requests
func (o Options) attempts() int {
	if o.Session.PlaylistReloadAttempts > 0 {
		return o.Session.PlaylistReloadAttempts
	}
	return 3
}

func (o Options) sessionOptions(kind Kind) segmented.Options {
	opts := segmented.Options{
		Client: o.Client,
		Kind:   string(kind),
	}
	if o.FilterAds && kind == KindHLS {
		opts.Discard = hls.IsAdSegment
	}
	return opts
}
