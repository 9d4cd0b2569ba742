package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Level string
	// File receives logs when set. Otherwise logs go to Stderr, or nowhere
	// when Quiet is true.
	File   string
	Quiet  bool
	Stderr io.Writer
}

// Setup configures the global zerolog logger. The returned function closes
// the log file, if one was opened.
func Setup(opts Options) (func() error, error) {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	closer := func() error { return nil }
	var w io.Writer
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return closer, fmt.Errorf("logging: create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("logging: open log file: %w", err)
		}
		w, closer = f, f.Close
	case opts.Quiet:
		w = io.Discard
	default:
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		w = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen, NoColor: !isTerminal(stderr)}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer, nil
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
