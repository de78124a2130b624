// Package log builds the process logger and the raw wire tracer.
//
// Without a log file, records go to stdout and errors to stderr, so a
// service manager can redirect the two streams independently. With a log
// file, everything is duplicated into the file as well.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LevelTrace sits below slog.LevelDebug and gates the wire tracer.
const LevelTrace slog.Level = -8

var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLevel(s string) slog.Level {
	if lvl, ok := levelNames[s]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// fanout duplicates records to every wrapped handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		_ = h.Handle(ctx, r)
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

// banded restricts a handler to a half-open level range so stdout and
// stderr each see only their share of the records.
type banded struct {
	min, max slog.Level // inclusive min, exclusive max
	h        slog.Handler
}

func (b banded) in(level slog.Level) bool { return level >= b.min && level < b.max }

func (b banded) Enabled(ctx context.Context, level slog.Level) bool {
	return b.in(level) && b.h.Enabled(ctx, level)
}

func (b banded) Handle(ctx context.Context, r slog.Record) error {
	if !b.in(r.Level) {
		return nil
	}
	return b.h.Handle(ctx, r)
}

func (b banded) WithAttrs(attrs []slog.Attr) slog.Handler {
	return banded{min: b.min, max: b.max, h: b.h.WithAttrs(attrs)}
}

func (b banded) WithGroup(name string) slog.Handler {
	return banded{min: b.min, max: b.max, h: b.h.WithGroup(name)}
}

const levelCeiling = slog.Level(1 << 16)

// SetupLogger builds the process logger for the given level name and
// optional log file. Returned closers belong to the caller.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level := parseLevel(logLevel)

	var handlers fanout
	var closers []io.Closer

	if logFile == "" {
		handlers = append(handlers,
			banded{
				min: level, max: slog.LevelError,
				h: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
			},
			banded{
				min: slog.LevelError, max: levelCeiling,
				h: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
			},
		)
	} else {
		handlers = append(handlers,
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f)
		handlers = append(handlers,
			slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(handlers), closers, nil
}
