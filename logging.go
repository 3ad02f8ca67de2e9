package eventfold

// Logger defines the logging interface used throughout the engine.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// scopedLogger prefixes every message with the write-model location that
// produced it, so handler logs can be traced back to their aggregate.
type scopedLogger struct {
	inner Logger
	scope string
}

func (l *scopedLogger) Debug(msg string, args ...interface{}) {
	l.inner.Debug(l.scope+": "+msg, args...)
}

func (l *scopedLogger) Info(msg string, args ...interface{}) {
	l.inner.Info(l.scope+": "+msg, args...)
}

func (l *scopedLogger) Warn(msg string, args ...interface{}) {
	l.inner.Warn(l.scope+": "+msg, args...)
}

func (l *scopedLogger) Error(msg string, args ...interface{}) {
	l.inner.Error(l.scope+": "+msg, args...)
}

// ScopeLogger returns a logger that prefixes messages with the given
// write-model scope (e.g. "planning.peerGroup").
func ScopeLogger(inner Logger, scope string) Logger {
	if inner == nil {
		inner = &noopLogger{}
	}
	return &scopedLogger{inner: inner, scope: scope}
}
