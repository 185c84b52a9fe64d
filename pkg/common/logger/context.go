package logger

import "context"

// LoggerContext accumulates key/value pairs over the course of an operation so
// later log lines carry everything learned so far.
type LoggerContext struct {
	base  *Logger
	attrs []any
}

// NewLoggerContext wraps base. Attributes added later are appended to every
// subsequent record.
func NewLoggerContext(base *Logger) *LoggerContext {
	return &LoggerContext{base: base}
}

// Add appends key/value pairs to the context.
func (l *LoggerContext) Add(args ...any) { l.attrs = append(l.attrs, args...) }

// Logger returns a *Logger carrying every attribute added so far.
func (l *LoggerContext) Logger() *Logger { return l.base.With(l.attrs...) }

func (l *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	l.base.Debugc(ctx, 4, msg, l.merge(args)...)
}

func (l *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	l.base.Infoc(ctx, 4, msg, l.merge(args)...)
}

func (l *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	l.base.Warnc(ctx, 4, msg, l.merge(args)...)
}

func (l *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	l.base.Errorc(ctx, 4, msg, l.merge(args)...)
}

func (l *LoggerContext) merge(args []any) []any {
	out := make([]any, 0, len(l.attrs)+len(args))
	out = append(out, l.attrs...)
	return append(out, args...)
}
