package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Options struct {
	Level       string
	Service     string
	Environment string
	// Pretty switches to zerolog's console writer for local use.
	Pretty bool
	Output io.Writer
}

// New creates a structured zerolog.Logger. Non-empty context fields are added
// automatically; an unknown level falls back to info.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if opts.Environment != "" {
		ctx = ctx.Str("environment", opts.Environment)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
