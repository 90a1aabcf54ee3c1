package internal

import (
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"
)

// NewLogger builds the process logger: JSON lines for machines, or
// charmbracelet's coloured text handler for terminals.
func NewLogger(w io.Writer, cfg ApplicationConfig) *slog.Logger {
	if cfg.LogFormat == LogFormatText {
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(cfg.LogLevel),
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}
