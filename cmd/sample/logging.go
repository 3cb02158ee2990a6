package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// newLogger returns a tint logger. Colour and short timestamps are used only
// when w is a terminal.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	terminal := false
	if f, ok := w.(*os.File); ok {
		terminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	timeFormat := time.RFC3339
	if terminal {
		timeFormat = time.Kitchen
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    !terminal,
		TimeFormat: timeFormat,
	}))
}
