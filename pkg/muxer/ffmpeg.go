package muxer

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/internal/utils"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// how long ffmpeg gets to finish after SIGTERM
const killTimeout = 5 * time.Second

// first file descriptor of ExtraFiles in the child process
const firstInputFd = 3

type FFmpeg struct {
	Binary     string // ffmpeg executable, looked up in PATH
	Format     string // output container
	VideoCodec string
	AudioCodec string
	LogLevel   string

	// OnLog receives ffmpeg stderr lines, by default they are logged.
	OnLog func(message string)
}

func (f FFmpeg) withDefaultValues() FFmpeg {
	if f.Binary == "" {
		f.Binary = "ffmpeg"
	}
	if f.Format == "" {
		f.Format = "matroska"
	}
	if f.VideoCodec == "" {
		f.VideoCodec = "copy"
	}
	if f.AudioCodec == "" {
		f.AudioCodec = "copy"
	}
	if f.LogLevel == "" {
		f.LogLevel = "error"
	}
	return f
}

// Args returns ffmpeg arguments muxing n inputs read from pipes into one
// container written to stdout.
func (f FFmpeg) Args(n int) []string {
	f = f.withDefaultValues()

	args := []string{"-nostats", "-y", "-loglevel", f.LogLevel}
	for i := 0; i < n; i++ {
		args = append(args, "-i", "pipe:"+strconv.Itoa(firstInputFd+i))
	}
	args = append(args, "-c:v", f.VideoCodec, "-c:a", f.AudioCodec)
	for i := 0; i < n; i++ {
		args = append(args, "-map", strconv.Itoa(i))
	}
	return append(args, "-f", f.Format, "pipe:1")
}

// Muxer is one running ffmpeg process.
type Muxer struct {
	logger zerolog.Logger
	cmd    *exec.Cmd

	inputs  []*input
	readers []*os.File

	stopOnce sync.Once
	exited   chan struct{}
	err      error
}

// Open starts ffmpeg muxing n inputs into out. Inputs must be written
// concurrently, ffmpeg reads them interleaved.
func (f FFmpeg) Open(ctx context.Context, n int, out io.Writer) (*Muxer, error) {
	if n < 1 {
		return nil, errors.New("muxer needs at least one input")
	}

	f = f.withDefaultValues()

	binary, err := exec.LookPath(f.Binary)
	if err != nil {
		return nil, &media.MuxProcessError{Err: err}
	}

	m := &Muxer{
		logger: log.With().Str("module", "muxer").Str("submodule", "ffmpeg").Logger(),
		exited: make(chan struct{}),
	}

	cmd := exec.Command(binary, f.Args(n)...)
	for i := 0; i < n; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			m.closePipes()
			return nil, err
		}

		m.readers = append(m.readers, r)
		m.inputs = append(m.inputs, &input{File: w})
		cmd.ExtraFiles = append(cmd.ExtraFiles, r)
	}

	if f.OnLog != nil {
		cmd.Stderr = utils.LogEvent(f.OnLog)
	} else {
		cmd.Stderr = utils.LogWriter(m.logger)
	}
	cmd.Stdout = out

	// create a new process group
	cmd.SysProcAttr = utils.ConfigureAsProcessGroup()
	m.cmd = cmd

	m.logger.Debug().Strs("args", cmd.Args).Msg("starting ffmpeg")

	if err := cmd.Start(); err != nil {
		m.closePipes()
		return nil, &media.MuxProcessError{Err: err}
	}

	// child holds its own copies of the read ends
	for _, r := range m.readers {
		_ = r.Close()
	}
	m.readers = nil

	go m.wait()

	stop := context.AfterFunc(ctx, func() {
		_ = m.Close()
	})
	go func() {
		<-m.exited
		stop()
	}()

	return m, nil
}

func (m *Muxer) wait() {
	defer close(m.exited)

	err := m.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		m.logger.Warn().Int("exit-status", exitErr.ExitCode()).Msg("the program has exited with an exit code != 0")
		m.err = &media.MuxProcessError{ExitCode: exitErr.ExitCode(), Err: err}
	case err != nil:
		m.logger.Err(err).Msg("the program has exited with an error")
		m.err = &media.MuxProcessError{Err: err}
	default:
		m.logger.Info().Msg("the program has successfully exited")
	}

	// unblock writers of inputs ffmpeg stopped reading
	for _, in := range m.inputs {
		_ = in.Close()
	}
}

func (m *Muxer) closePipes() {
	for _, r := range m.readers {
		_ = r.Close()
	}
	for _, in := range m.inputs {
		_ = in.Close()
	}
}

// Inputs returns one sink per track, in the order of -map arguments.
func (m *Muxer) Inputs() []io.WriteCloser {
	out := make([]io.WriteCloser, len(m.inputs))
	for i, in := range m.inputs {
		out[i] = in
	}
	return out
}

// Wait blocks until ffmpeg exited and returns its error.
func (m *Muxer) Wait() error {
	<-m.exited
	return m.err
}

// Exited is closed once ffmpeg exited.
func (m *Muxer) Exited() <-chan struct{} {
	return m.exited
}

// Close closes all inputs and stops ffmpeg. The process group is terminated
// and killed if it does not exit in time.
func (m *Muxer) Close() error {
	m.stopOnce.Do(func() {
		for _, in := range m.inputs {
			_ = in.Close()
		}

		select {
		case <-m.exited:
			return
		default:
		}

		m.logger.Debug().Msg("performing stop")

		err := utils.TerminateProcessGroup(m.cmd)
		m.logger.Err(err).Msg("terminating process group")

		select {
		case <-m.exited:
		case <-time.After(killTimeout):
			err := utils.KillProcessGroup(m.cmd)
			m.logger.Err(err).Msg("killing process group")
		}
	})

	<-m.exited
	return nil
}

// input is the write end of one ffmpeg input pipe, closed at most once.
type input struct {
	*os.File
	once sync.Once
	err  error
}

func (i *input) Close() error {
	i.once.Do(func() {
		i.err = i.File.Close()
	})
	return i.err
}
