package logs

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

type In struct {
	NoColor bool
	Verbose bool
	W       io.Writer
}

func New(in In) *slog.Logger {
	w := in.W
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if in.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    in.NoColor,
		TimeFormat: time.Kitchen,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey || len(groups) > 0 {
				return a
			}
			switch a.Value.Any().(slog.Level) {
			case slog.LevelError:
				return tint.Attr(9, slog.String(slog.LevelKey, "ERR"))
			case slog.LevelWarn:
				return tint.Attr(11, slog.String(slog.LevelKey, "WRN"))
			case slog.LevelDebug:
				return tint.Attr(8, slog.String(slog.LevelKey, "DBG"))
			}
			return tint.Attr(5, slog.String(slog.LevelKey, "QTEX"))
		},
	}))
}
