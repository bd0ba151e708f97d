// Package logging builds the process logger: logr on top of zerolog, human
// readable on a terminal and JSON into a rotating file otherwise.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/kardianos/service"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options select level and destination.
type Options struct {
	Level   string
	Verbose bool
	Debug   bool

	// File forces file output. When empty, file output is only used for
	// non-interactive runs outside systemd.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init builds the logger described by opts.
func Init(opts Options) (logr.Logger, error) {
	w, console, err := writer(opts)
	if err != nil {
		return logr.Discard(), err
	}
	return New(w, console, ParseLevel(opts.Level, opts.Verbose, opts.Debug)), nil
}

// New builds a logger writing to w at level.
func New(w io.Writer, console bool, level zerolog.Level) logr.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	// logr V(1) maps to zerolog debug, V(2) to trace.
	zerologr.SetMaxV(2)

	zl := zerolog.New(w)
	if console {
		zl = zl.Output(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !isColorTerminal(),
			TimeFormat: time.RFC3339,
		})
	}
	zerolog.SetGlobalLevel(level)
	zl = zl.Level(level).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

// ParseLevel resolves the configured level name with the CLI flags on top.
func ParseLevel(name string, verbose, debug bool) zerolog.Level {
	if debug {
		return zerolog.TraceLevel
	}
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// IsTerminal reports whether stderr is attached to a terminal.
func IsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func writer(opts Options) (io.Writer, bool, error) {
	if opts.File != "" {
		w, err := fileWriter(opts, opts.File)
		return w, false, err
	}
	if IsTerminal() {
		return os.Stderr, true, nil
	}
	if service.Interactive() || underSystemd() {
		return os.Stderr, false, nil
	}
	w, err := fileWriter(opts, filepath.Join(logDir(), "campusnet.log"))
	return w, false, err
}

func fileWriter(opts Options, path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
		Compress:   true,
	}, nil
}

func underSystemd() bool {
	return os.Getenv("JOURNAL_STREAM") != "" || os.Getenv("INVOCATION_ID") != ""
}

func logDir() string {
	if os.Geteuid() == 0 {
		return "/var/log/campusnet"
	}
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "campusnet", "logs")
}

func isColorTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// IsContextCancellation checks if an error is due to context cancellation.
func IsContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorIfNotCanceled logs an error only if it's not due to context cancellation.
func ErrorIfNotCanceled(log logr.Logger, err error, msg string, keysAndValues ...any) {
	if err != nil && !IsContextCancellation(err) {
		log.Error(err, msg, keysAndValues...)
	}
}
