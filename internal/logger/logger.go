package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger struct {
	l *slog.Logger
}

func New(l *slog.Logger) *Logger {
	return &Logger{l: l}
}

// NewJSON writes JSON records at the given level to w.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	//nolint:exhaustruct
	return New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// ParseLevel understands debug, info, warn and error. Anything else is info.
func ParseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}

	return level
}

// Discard is for tests.
func Discard() *Logger {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// With returns a logger that attaches args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l: l.l.With(args...)}
}

func (l *Logger) Slog() *slog.Logger {
	return l.l
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.l.Error(fmt.Sprintf(format, v...))
}

func (l *Logger) LogWarn(format string, v ...any) {
	l.l.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.l.Info(fmt.Sprintf(format, v...))
}
