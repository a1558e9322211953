// Package logging builds the structured loggers used by the CLI and the
// suite runner.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	slogmulti "github.com/samber/slog-multi"
)

// Format is the console log format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a --log-format value
func ParseFormat(text string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(text))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Errorf("unknown log format %q (expected text or json)", text)
	}
}

// Options configures a logger
type Options struct {
	// Writer is the console output, stderr if nil
	Writer io.Writer

	Format  Format
	Verbose bool

	// File receives a JSON copy of every record at debug level, if not nil
	File io.Writer
}

// New builds a logger from the options
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	console := consoleHandler(w, opts.Format, level)
	if opts.File == nil {
		return slog.New(console)
	}

	return slog.New(slogmulti.Fanout(console, fileHandler(opts.File)))
}

// WithFile returns a logger that also writes every record to w as JSON
func WithFile(logger *slog.Logger, w io.Writer) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slog.New(slogmulti.Fanout(logger.Handler(), fileHandler(w)))
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func consoleHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func fileHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}
