package output

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/internal/utils"
)

// how long a player gets to exit after its input was closed
const processExitTimeout = 10 * time.Second

// ProcessCtx feeds the stream into stdin of an external program, usually a
// player.
type ProcessCtx struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	closeOnce sync.Once
	closeErr  error
	exited    chan struct{}
	waitErr   error
}

func Process(cmd *exec.Cmd) (*ProcessCtx, error) {
	logger := log.With().
		Str("module", "output").
		Str("submodule", "process").
		Str("program", cmd.Path).
		Logger()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	if cmd.Stderr == nil {
		cmd.Stderr = utils.LogWriter(logger)
	}

	// create a new process group
	cmd.SysProcAttr = utils.ConfigureAsProcessGroup()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &ProcessCtx{
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}

	go func() {
		defer close(p.exited)
		p.waitErr = cmd.Wait()

		var exitErr *exec.ExitError
		if errors.As(p.waitErr, &exitErr) {
			logger.Warn().Int("exit-status", exitErr.ExitCode()).Msg("the program has exited with an exit code != 0")
		} else if p.waitErr != nil {
			logger.Err(p.waitErr).Msg("the program has exited with an error")
		} else {
			logger.Info().Msg("the program has successfully exited")
		}
	}()

	return p, nil
}

// Write fails once the program exited, a closed player ends the stream.
func (p *ProcessCtx) Write(b []byte) (int, error) {
	select {
	case <-p.exited:
		return 0, io.ErrClosedPipe
	default:
	}
	return p.stdin.Write(b)
}

// Close closes stdin and waits for the program to exit. A program that does
// not exit in time is killed.
func (p *ProcessCtx) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()

		select {
		case <-p.exited:
		case <-time.After(processExitTimeout):
			p.logger.Warn().Msg("program did not exit, killing process group")
			err := utils.KillProcessGroup(p.cmd)
			p.logger.Err(err).Msg("killing process group")
			<-p.exited
		}

		var exitErr *exec.ExitError
		if errors.As(p.waitErr, &exitErr) {
			p.closeErr = fmt.Errorf("%s exited with status %d", p.cmd.Path, exitErr.ExitCode())
		} else {
			p.closeErr = p.waitErr
		}
	})
	return p.closeErr
}

// Exited is closed once the program exited.
func (p *ProcessCtx) Exited() <-chan struct{} {
	return p.exited
}
