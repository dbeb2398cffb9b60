package guildsweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const loggerNameKey = "logger"

var (
	// Logs go to stderr so they don't interleave with the menu on stdout
	defaultLogWriter io.Writer = os.Stderr
)

// newLogHandler returns the tint handler used by every logger in the
// package, at the given level (or INFO, if level is nil).
func newLogHandler(w io.Writer, level *slog.LevelVar, noColor bool) slog.Handler {
	opts := &tint.Options{
		AddSource: true,
		NoColor:   noColor,
	}
	if level != nil {
		opts.Level = level
	}
	return tint.NewHandler(w, opts)
}

// discordgoLoggerFunc returns a function suitable for discordgo.Logger,
// which sends discordgo's printf-style messages to the given handler.
func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(
	msgL int,
	caller int,
	format string,
	args ...any,
) {
	log := slog.New(handler)
	return func(
		msgL int,
		_ int,
		format string,
		args ...any,
	) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(
			ctx,
			level,
			strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""),
		)
	}
}

// discordgoLogLevel maps a slog level onto discordgo's integer levels
func discordgoLogLevel(lvl slog.Level) (int, error) {
	switch lvl {
	case slog.LevelInfo:
		return discordgo.LogInformational, nil
	case slog.LevelWarn:
		return discordgo.LogWarning, nil
	case slog.LevelDebug:
		return discordgo.LogDebug, nil
	case slog.LevelError:
		return discordgo.LogError, nil
	default:
		return discordgo.LogWarning, fmt.Errorf("invalid log level: %s", lvl)
	}
}
