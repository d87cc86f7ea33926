package output

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

var ErrAborted = errors.New("output aborted")

// File creates path, including missing parent directories, truncating an
// existing file.
func File(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// AtomicFileCtx writes into a temporary file next to the target. The target
// is replaced on Close, Abort removes the temporary file instead and the
// target stays untouched.
type AtomicFileCtx struct {
	mu      sync.Mutex
	pending *renameio.PendingFile
	done    bool
	aborted bool
}

func AtomicFile(path string) (*AtomicFileCtx, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, err
	}

	return &AtomicFileCtx{pending: pending}, nil
}

func (f *AtomicFileCtx) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		if f.aborted {
			return 0, ErrAborted
		}
		return 0, os.ErrClosed
	}
	return f.pending.Write(p)
}

// Close commits the written data to the target path.
func (f *AtomicFileCtx) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return nil
	}
	f.done = true

	if err := f.pending.CloseAtomicallyReplace(); err != nil {
		_ = f.pending.Cleanup()
		return err
	}
	return nil
}

func (f *AtomicFileCtx) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return nil
	}
	f.done = true
	f.aborted = true

	return f.pending.Cleanup()
}
