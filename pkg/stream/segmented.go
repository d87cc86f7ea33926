package stream

import (
	"context"
	"io"

	"github.com/oe-mirrors/streamlink-27/pkg/dash"
	"github.com/oe-mirrors/streamlink-27/pkg/hls"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/segmented"
)

// HLSStream plays one HLS media playlist.
type HLSStream struct {
	Variant *media.Variant
	opts    Options
}

func NewHLSStream(variant *media.Variant, opts Options) *HLSStream {
	return &HLSStream{Variant: variant, opts: opts.withDefaultValues()}
}

func (s *HLSStream) Kind() Kind {
	return KindHLS
}

func (s *HLSStream) WriteTo(ctx context.Context, sink io.WriteCloser) error {
	loader := hls.NewLoader(s.opts.Client, s.Variant.URI, s.opts.attempts()).WithInline(s.Variant.Inline)
	session := segmented.NewSession(&s.opts.Session, loader, sink, s.opts.sessionOptions(KindHLS))
	return session.Run(ctx)
}

// DASHStream plays one representation of a MPD.
type DASHStream struct {
	Variant *media.Variant
	opts    Options
}

func NewDASHStream(variant *media.Variant, opts Options) *DASHStream {
	return &DASHStream{Variant: variant, opts: opts.withDefaultValues()}
}

func (s *DASHStream) Kind() Kind {
	return KindDASH
}

func (s *DASHStream) WriteTo(ctx context.Context, sink io.WriteCloser) error {
	loader := dash.NewLoader(s.opts.Client, s.Variant.URI, s.Variant.ID, s.opts.attempts()).WithInline(s.Variant.Inline)
	session := segmented.NewSession(&s.opts.Session, loader, sink, s.opts.sessionOptions(KindDASH))
	return session.Run(ctx)
}
