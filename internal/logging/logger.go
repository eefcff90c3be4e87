package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"voxtape/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// Rotation applies to every file path in OutputPaths. Zero values disable
	// rotation and append to the file directly.
	MaxSizeMB  int
	MaxBackups int
}

// New constructs a slog logger. OutputPaths accepts "stdout", "stderr" or
// file paths and defaults to stdout.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	var build func(io.Writer) slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		build = func(w io.Writer) slog.Handler { return newPrettyHandler(w, levelVar, addSource) }
	case "json":
		build = func(w io.Writer) slog.Handler { return newJSONHandler(w, levelVar, addSource) }
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openSinks(opts.OutputPaths, opts.MaxSizeMB, opts.MaxBackups)
	if err != nil {
		return nil, err
	}
	return slog.New(build(out)), nil
}

// NewDaemonLogger builds the voxtaped logger: stdout plus the rotated daemon
// log. An empty level falls back to the configured one.
func NewDaemonLogger(cfg *config.Config, level string, development bool) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: level, Development: development})
	}
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	paths := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		paths = append(paths, DaemonLogPath(cfg))
	}
	return New(Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
		Development: development,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
}

// DaemonLogPath returns the rotated daemon log location.
func DaemonLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "voxtaped.log")
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func openSinks(paths []string, maxSizeMB, maxBackups int) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	seen := make(map[string]bool, len(paths))
	sinks := make([]io.Writer, 0, len(paths))
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		sink, err := openSink(path, maxSizeMB, maxBackups)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		return os.Stdout, nil
	case 1:
		return sinks[0], nil
	default:
		return io.MultiWriter(sinks...), nil
	}
}

func openSink(path string, maxSizeMB, maxBackups int) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	if maxSizeMB > 0 {
		return &lumberjack.Logger{Filename: path, MaxSize: maxSizeMB, MaxBackups: maxBackups}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}
