package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/config"
)

// NewLogger builds the process logger on stderr.
func NewLogger(cfg config.LogConfig) (attendance.Logger, error) {
	l, err := newSlog(os.Stderr, cfg)
	if err != nil {
		return nil, err
	}
	return &slogAdapter{l: l}, nil
}

func newSlog(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// slogAdapter wraps *slog.Logger to satisfy the attendance.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// Slog exposes the underlying logger for libraries that want one.
func Slog(l attendance.Logger) *slog.Logger {
	if a, ok := l.(*slogAdapter); ok {
		return a.l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
