package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options controls how Init builds the process-wide logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	Output string // stdout, stderr, or a file path
}

var (
	logger      *slog.Logger
	atomicLevel = new(slog.LevelVar)
)

// Init builds the default logger. The returned closer releases a log file
// when Output names one; it is a no-op otherwise.
func Init(opts Options) (io.Closer, error) {
	atomicLevel.Set(ParseLevel(opts.Level))

	var writer io.Writer
	var closer io.Closer = nopCloser{}
	switch strings.ToLower(opts.Output) {
	case "stderr", "":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writer = file
		closer = file
	}

	logger = slog.New(NewHandler(writer, opts.Format))
	slog.SetDefault(logger)
	return closer, nil
}

// NewHandler returns the handler used for the given format: JSON, or tint
// console output with colour only when writing to a terminal. Source
// locations are attached for warn and error records.
func NewHandler(w io.Writer, format string) slog.Handler {
	var base slog.Handler
	if strings.ToLower(format) == "json" {
		base = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: atomicLevel,
		})
	} else {
		base = tint.NewHandler(w, &tint.Options{
			Level:       atomicLevel,
			TimeFormat:  time.DateTime,
			NoColor:     !isTerminal(w),
			ReplaceAttr: replaceErrorAttr,
		})
	}
	return NewConditionalSourceHandler(base, slog.LevelWarn, slog.LevelError)
}

func replaceErrorAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == "error" && a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return tint.Err(err)
		}
	}
	return a
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// SetLevel changes the level of the default logger at runtime.
func SetLevel(level slog.Level) {
	atomicLevel.Set(level)
}

// Get returns the default logger, building a console logger on stderr if
// Init has not been called.
func Get() *slog.Logger {
	if logger == nil {
		logger = slog.New(NewHandler(os.Stderr, "console"))
	}
	return logger
}

// WithComponent returns a logger tagged with a component attribute.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that pass a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
