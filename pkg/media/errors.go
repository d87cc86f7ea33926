package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStreamEnded   = errors.New("stream ended")
	ErrSessionClosed = errors.New("session closed")
	ErrEncrypted     = errors.New("stream is protected by DRM")
)

type MalformedManifestError struct {
	URL     string
	Line    int    // 1-based, 0 when unknown
	Element string // offending tag, line or XML element
	Reason  string
	Err     error
}

func (e *MalformedManifestError) Error() string {
	var b strings.Builder
	b.WriteString("malformed manifest")
	if e.URL != "" {
		b.WriteString(" " + e.URL)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Element != "" {
		fmt.Fprintf(&b, " (%s)", e.Element)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *MalformedManifestError) Unwrap() error { return e.Err }

type NoStreamsAvailableError struct {
	Token     string
	Available []string
}

func (e *NoStreamsAvailableError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("no streams available for %q", e.Token)
	}
	return fmt.Sprintf("no streams available for %q, available: %s", e.Token, strings.Join(e.Available, ", "))
}

type SegmentFetchError struct {
	Sequence   int64
	URI        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *SegmentFetchError) Error() string {
	msg := fmt.Sprintf("segment %d (%s) failed after %d attempts", e.Sequence, e.URI, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SegmentFetchError) Unwrap() error { return e.Err }

type SegmentDecryptError struct {
	Sequence int64
	KeyURI   string
	Err      error
}

func (e *SegmentDecryptError) Error() string {
	return fmt.Sprintf("segment %d decrypt failed (key %s): %v", e.Sequence, e.KeyURI, e.Err)
}

func (e *SegmentDecryptError) Unwrap() error { return e.Err }

type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink write failed: %v", e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

type MuxProcessError struct {
	ExitCode int
	Err      error
}

func (e *MuxProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("mux process exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("mux process failed: %v", e.Err)
}

func (e *MuxProcessError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the whole session.
func IsFatal(err error) bool {
	var (
		sinkErr *SinkWriteError
		muxErr  *MuxProcessError
		noneErr *NoStreamsAvailableError
	)
	return errors.As(err, &sinkErr) || errors.As(err, &muxErr) || errors.As(err, &noneErr)
}
