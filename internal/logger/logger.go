package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup builds a *slog.Logger that writes structured JSON to w.
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault installs a JSON structured logger as the slog default.
// Pass nil to use os.Stdout, which is what production should do.
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
