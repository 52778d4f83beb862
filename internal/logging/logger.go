package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type options struct {
	out    io.Writer
	format string
}

// Option configures New.
type Option func(*options)

// WithOutput redirects log lines to w.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithFormat selects FormatText or FormatJSON.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// New creates the application logger.
// By default it writes text to Stderr, away from the player UI and JSON-RPC on Stdout.
// The "error" key is shortened to "err".
func New(level slog.Level, opts ...Option) *slog.Logger {
	o := options{out: os.Stderr, format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if o.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(o.out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(o.out, handlerOpts))
}

// ValidFormat reports an error for formats New does not know.
func ValidFormat(format string) error {
	switch format {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
