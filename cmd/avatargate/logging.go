package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/avatargate/avatargate/internal/config"
	"github.com/mattn/go-isatty"
)

func setupLogging(w io.Writer, cfg *config.Config) {
	slog.SetDefault(newLogger(w, cfg.LogLevel, cfg.LogFormat))
}

// newLogger picks the text handler for terminals and JSON otherwise, unless
// format forces one of them.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
