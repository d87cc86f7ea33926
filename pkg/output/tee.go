package output

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TeeCtx writes the stream to an output and a recording. A failing
// recording is dropped, the output keeps going.
type TeeCtx struct {
	logger  zerolog.Logger
	primary io.WriteCloser

	mu     sync.Mutex
	record io.WriteCloser
}

func Tee(primary, record io.WriteCloser) *TeeCtx {
	return &TeeCtx{
		logger:  log.With().Str("module", "output").Str("submodule", "tee").Logger(),
		primary: primary,
		record:  record,
	}
}

func (t *TeeCtx) Write(p []byte) (int, error) {
	t.mu.Lock()
	record := t.record
	t.mu.Unlock()

	if record != nil {
		if _, err := record.Write(p); err != nil {
			t.logger.Err(err).Msg("recording failed, continuing without it")
			t.dropRecord()
		}
	}

	return t.primary.Write(p)
}

func (t *TeeCtx) dropRecord() {
	t.mu.Lock()
	record := t.record
	t.record = nil
	t.mu.Unlock()

	if record != nil {
		_ = record.Close()
	}
}

func (t *TeeCtx) Close() error {
	t.mu.Lock()
	record := t.record
	t.record = nil
	t.mu.Unlock()

	err := t.primary.Close()
	if record != nil {
		if recordErr := record.Close(); err == nil {
			err = recordErr
		}
	}
	return err
}
