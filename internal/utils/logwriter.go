package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

// LogWriterCtx logs every non-empty line written by a child process.
type LogWriterCtx struct {
	logger zerolog.Logger
}

func LogWriter(l zerolog.Logger) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	for _, line := range lines(p) {
		l.logger.Warn().Msg(line)
	}
	return len(p), nil
}

func lines(p []byte) []string {
	var out []string
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
