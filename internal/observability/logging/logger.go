// Package logging is the structured diagnostic log used by every ruleforge
// component. Human-facing output is written by the CLI, not here.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
)

type Logger interface {
	Debug(component, msg string, fields ...any)
	Info(component, msg string, fields ...any)
	Warn(component, msg string, fields ...any)
	Error(component, msg string, fields ...any)
	Event(ctx context.Context, event string, fields map[string]any)
	Close() error
}

type loggerKey struct{}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// From never returns nil; without a stored logger it returns Nop().
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Nop()
}

// OrNop lets option structs leave their logger unset.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Nop discards everything.
func Nop() Logger {
	return &noopLogger{}
}

func NewLogger(cfg Config) (Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var w io.Writer
	var closer io.Closer

	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w = f
		closer = f
	}

	if strings.EqualFold(cfg.Format, FormatJSONL) {
		return newJSONLLogger(w, closer, cfg.Level), nil
	}

	return &noopLogger{closer: closer}, nil
}

type noopLogger struct {
	closer io.Closer
}

func (n *noopLogger) Debug(component, msg string, fields ...any) {}
func (n *noopLogger) Info(component, msg string, fields ...any)  {}
func (n *noopLogger) Warn(component, msg string, fields ...any)  {}
func (n *noopLogger) Error(component, msg string, fields ...any) {}
func (n *noopLogger) Event(ctx context.Context, event string, fields map[string]any) {
}
func (n *noopLogger) Close() error {
	if n.closer != nil {
		return n.closer.Close()
	}
	return nil
}
