// Package logx builds the tinted slog handler shared by the firmware and the
// host simulator.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a logger writing coloured lines to w. Timestamps are replaced
// by uptime since start (mm:ss.ss), which is what matters on a board with no
// RTC until the host pushes the time.
func New(w io.Writer, level slog.Level, start time.Time, color bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !color,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				elapsed := time.Since(start)
				mins := int(elapsed.Minutes())
				secs := elapsed.Seconds() - float64(mins*60)
				a.Value = slog.StringValue(fmt.Sprintf("%02d:%05.2f", mins, secs))
			}
			return a
		},
	}))
}

// Service returns the default logger tagged with a service name, or l
// itself when the caller injected one.
func Service(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default().With("service", name)
}

// ParseLevel accepts debug, info, warn and error; anything else is info.
func ParseLevel(s string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lv
}
