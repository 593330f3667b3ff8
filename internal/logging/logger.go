package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the name of the log file created inside the log directory.
const FileName = "synchcore.log"

// Logger provides structured logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer *closeOnce
}

// closeOnce is shared by a logger and all of its children so that the
// underlying file is closed exactly once.
type closeOnce struct {
	mu sync.Mutex
	c  io.Closer
}

func (o *closeOnce) close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.c == nil {
		return nil
	}
	err := o.c.Close()
	o.c = nil
	return err
}

// New creates a Logger that writes JSON lines to w at the given level.
func New(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// NewLogger creates a Logger that appends to {dir}/synchcore.log.
// If dir is empty, logs are written to stderr.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return New(os.Stderr, level), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := New(file, level)
	l.closer = &closeOnce{c: file}
	return l, nil
}

// NewLoggerWithRotation is like NewLogger but rotates the log file once it
// grows beyond config.MaxSizeMB.
func NewLoggerWithRotation(dir string, level string, config RotationConfig) (*Logger, error) {
	if dir == "" {
		return New(os.Stderr, level), nil
	}

	rw, err := NewRotatingWriter(filepath.Join(dir, FileName), config)
	if err != nil {
		return nil, err
	}

	l := New(rw, level)
	l.closer = &closeOnce{c: rw}
	return l, nil
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel normalizes a user-provided level string.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// With returns a child Logger that adds the given key-value pairs to every
// entry.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), closer: l.closer}
}

// WithComponent tags entries with the subsystem that produced them
// ("intersection", "proctable", "kernel", ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithRun tags entries with a simulation or scenario run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithPID tags entries with a process identifier.
func (l *Logger) WithPID(pid int) *Logger {
	return l.With("pid", pid)
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, args...)
}

// Enabled reports whether messages at level would be emitted. Hot paths use
// it to skip building attributes.
func (l *Logger) Enabled(level string) bool {
	return l.logger.Enabled(context.Background(), parseLevel(level))
}

// Close flushes and closes the log file. Calling Close on a child logger
// closes the file shared with its parent. Loggers writing to stderr or a
// caller-provided writer are not closed.
func (l *Logger) Close() error {
	return l.closer.close()
}
