// Package logging builds the service's zerolog.Logger, console-formatted
// in foreground/dev mode and JSON-formatted to a rotating file in
// service mode. The teacher repo logs through the standard library's
// `log` package; this supervisor instead adopts zerolog, the structured
// logging library already present in the retrieval pack (see
// SPEC_FULL.md §5 and DESIGN.md), with lumberjack handling rotation.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger construction.
type Options struct {
	// Foreground selects a human-readable console writer instead of
	// JSON-to-file; used for `svcbroker run --foreground` and tests.
	Foreground bool
	// LogFile is the JSON sink path used when Foreground is false.
	LogFile string
	// MaxSizeMB, MaxBackups, MaxAgeDays configure lumberjack rotation.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Level is the minimum zerolog level emitted.
	Level zerolog.Level
}

// DefaultOptions returns sane rotation defaults for a service log file.
func DefaultOptions(logFile string) Options {
	return Options{
		LogFile:    logFile,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Level:      zerolog.InfoLevel,
	}
}

// New builds a zerolog.Logger per opts.
func New(opts Options) (zerolog.Logger, error) {
	var writer io.Writer
	if opts.Foreground || opts.LogFile == "" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return zerolog.Logger{}, err
		}
		writer = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
	}

	return zerolog.New(writer).Level(opts.Level).With().Timestamp().Logger(), nil
}

// Reconfigurer builds a fresh logger from the same Options (level,
// rotation, foreground mode) with a new log file, used by
// supervisor.WithLogFileChanger to satisfy spec §4.5's "reinitialize the
// file logger" requirement on every StartClash.
type Reconfigurer struct {
	base zerolog.Logger
	opts Options
}

// NewReconfigurer constructs a Reconfigurer from opts. Logger returns the
// zero Logger until Reconfigure has been called.
func NewReconfigurer(opts Options) *Reconfigurer {
	return &Reconfigurer{opts: opts}
}

// Reconfigure builds a new logger writing to the given directory/file
// pair and returns it. When opts.Foreground is set the new logger still
// writes to the console and the file is not used.
func (r *Reconfigurer) Reconfigure(dir, file string) (zerolog.Logger, error) {
	r.opts.LogFile = filepath.Join(dir, file)
	logger, err := New(r.opts)
	if err != nil {
		return zerolog.Logger{}, err
	}
	r.base = logger
	return logger, nil
}

// Logger returns the currently active logger.
func (r *Reconfigurer) Logger() zerolog.Logger { return r.base }
