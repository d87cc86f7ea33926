package utils

// LogEventCtx passes every non-empty written line to a callback.
type LogEventCtx struct {
	event func(message string)
}

func LogEvent(event func(message string)) *LogEventCtx {
	return &LogEventCtx{
		event: event,
	}
}

func (l LogEventCtx) Write(p []byte) (n int, err error) {
	for _, line := range lines(p) {
		l.event(line)
	}
	return len(p), nil
}
