package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	JSONFormat bool   // JSON lines instead of key=value text
	OutputFile string // Optional file, written in addition to stderr
	MaxSize    int64  // Rotate the file once it grows past this many bytes (default: 10MB)
	MaxBackups int    // Rotated files to keep (default: 3)
	AddSource  bool
}

// Logger owns the handler installed as the slog default
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

// Setup builds a logger from cfg and installs it as slog.Default().
// Components then derive their own loggers with
// slog.Default().With("component", name).
func Setup(cfg Config) (*Logger, error) {
	l, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.slog)
	return l, nil
}

// NewLogger creates a logger writing to out and, if configured, to a file
func NewLogger(cfg Config, out io.Writer) (*Logger, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}

	l := &Logger{config: cfg}
	writers := []io.Writer{out}

	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := l.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		l.file = f
		writers = append(writers, f)
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	w := io.MultiWriter(writers...)

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l.slog = slog.New(handler)
	return l, nil
}

// ParseLevel maps a config string to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog returns the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) rotateIfNeeded() error {
	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < l.config.MaxSize {
		return nil
	}

	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, fmt.Sprintf("%s.%d", l.config.OutputFile, i+1))
		}
	}
	return os.Rename(l.config.OutputFile, l.config.OutputFile+".1")
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
