package streamlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/output"
	"github.com/oe-mirrors/streamlink-27/pkg/stream"
)

type RecordOptions struct {
	Output string // file path, "-" writes to stdout
	Record string // file receiving a copy of what is played
	Player string // command reading the stream from stdin
}

// Streams lists variant names of url.
func (main *Main) Streams(ctx context.Context, url string) ([]string, error) {
	opts, err := main.EngineConfig.Stream()
	if err != nil {
		return nil, err
	}
	return stream.Streams(ctx, url, opts)
}

// Record writes the stream selected by quality to the configured outputs.
// An interrupted recording is kept, a failed one is discarded.
func (main *Main) Record(ctx context.Context, url, quality string, opts RecordOptions) error {
	streamOpts, err := main.EngineConfig.Stream()
	if err != nil {
		return err
	}

	s, err := stream.Open(ctx, url, quality, streamOpts)
	if err != nil {
		return err
	}

	rec, err := openRecording(opts, os.Stdout)
	if err != nil {
		return err
	}

	logger := main.logger.With().
		Str("url", url).
		Str("quality", quality).
		Str("kind", string(s.Kind())).
		Logger()

	logger.Info().Msg("recording started")
	err = rec.finish(s.WriteTo(ctx, rec.sink))
	if err != nil {
		logger.Err(err).Msg("recording failed")
		return err
	}

	logger.Info().Msg("recording finished")
	return nil
}

type recording struct {
	sink   io.WriteCloser
	atomic *output.AtomicFileCtx
	player *output.ProcessCtx
}

func openRecording(opts RecordOptions, stdout io.Writer) (*recording, error) {
	rec := &recording{}

	switch {
	case strings.TrimSpace(opts.Player) != "":
		args := strings.Fields(opts.Player)
		player, err := output.Process(exec.Command(args[0], args[1:]...))
		if err != nil {
			return nil, fmt.Errorf("unable to start player: %w", err)
		}
		rec.player = player
		rec.sink = player
	case opts.Output == "-":
		rec.sink = output.Pipe(stdout)
	case opts.Output != "":
		file, err := output.AtomicFile(opts.Output)
		if err != nil {
			return nil, err
		}
		rec.atomic = file
		// committed or discarded in finish
		rec.sink = output.Pipe(file)
	default:
		return nil, errors.New("no output, player or stdout selected")
	}

	if opts.Record != "" {
		file, err := output.File(opts.Record)
		if err != nil {
			_ = rec.sink.Close()
			_ = rec.abort()
			return nil, err
		}
		rec.sink = output.Tee(rec.sink, file)
	}

	return rec, nil
}

// finish maps the stream result to the command result once the sink is
// closed.
func (rec *recording) finish(err error) error {
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if rec.player != nil && err != nil {
		var sinkErr *media.SinkWriteError
		select {
		case <-rec.player.Exited():
			if errors.As(err, &sinkErr) {
				// the player was closed
				err = nil
			}
		default:
		}
	}

	if rec.atomic == nil {
		return err
	}

	if err != nil {
		_ = rec.abort()
		return err
	}
	return rec.atomic.Close()
}

func (rec *recording) abort() error {
	if rec.atomic == nil {
		return nil
	}
	return rec.atomic.Abort()
}
