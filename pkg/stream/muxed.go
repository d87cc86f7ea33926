package stream

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/muxer"
)

var errMuxerExited = errors.New("muxer exited before all inputs ended")

// MuxedStream plays several streams at once, each into one input of an
// ffmpeg muxer producing a single container.
type MuxedStream struct {
	Streams []Stream
	ffmpeg  muxer.FFmpeg
}

func NewMuxedStream(ffmpeg muxer.FFmpeg, streams ...Stream) *MuxedStream {
	return &MuxedStream{Streams: streams, ffmpeg: ffmpeg}
}

func (s *MuxedStream) Kind() Kind {
	return KindMuxed
}

// WriteTo ends as soon as any sub-stream fails or ffmpeg exits, all other
// sub-streams are cancelled.
func (s *MuxedStream) WriteTo(ctx context.Context, sink io.WriteCloser) (err error) {
	logger := log.With().Str("module", "stream").Str("kind", string(KindMuxed)).Logger()

	defer func() {
		if closeErr := sink.Close(); err == nil && closeErr != nil {
			err = &media.SinkWriteError{Err: closeErr}
		}
	}()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m, err := s.ffmpeg.Open(ctx, len(s.Streams), sink)
	if err != nil {
		return err
	}
	defer m.Close()

	inputs := m.Inputs()
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range s.Streams {
		st, input := st, inputs[i]
		g.Go(func() error {
			return st.WriteTo(gctx, input)
		})
	}

	streamsDone := make(chan error, 1)
	go func() {
		streamsDone <- g.Wait()
	}()

	select {
	case err := <-streamsDone:
		if err != nil {
			logger.Err(err).Msg("sub-stream failed, stopping muxer")
			_ = m.Close()
			return err
		}
		// all inputs closed, ffmpeg finishes the container
		return m.Wait()

	case <-m.Exited():
		muxErr := m.Wait()
		cancel()
		streamErr := <-streamsDone

		switch {
		case muxErr != nil:
			return muxErr
		case streamErr == nil:
			// inputs ended together with ffmpeg
			return nil
		case parent.Err() != nil:
			return parent.Err()
		default:
			logger.Warn().Err(streamErr).Msg("muxer exited early")
			return &media.MuxProcessError{Err: errMuxerExited}
		}
	}
}
