package log

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Config holds the settings for the process-wide logger.
type Config struct {
	// Level is the minimum logrus level that will be emitted (e.g. "info", "debug").
	Level string
	// Format selects the logrus formatter: "text" or "json".
	Format string
	// Output is the destination for log output: "stderr", "stdout", or a file path.
	Output string
}

type loggerKey struct{}

var root = logrus.StandardLogger()

// Configure applies cfg to the package-wide logger. It is intended to run
// once, from a command's PersistentPreRunE, before any GetLogger call.
func Configure(cfg *Config) error {
	if cfg.Output == "" {
		return ErrLogOutputRequired
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}
	root.SetLevel(parsed)

	switch cfg.Format {
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		return invalidLogFormatError{format: cfg.Format}
	}

	switch cfg.Output {
	case "stderr":
		root.SetOutput(os.Stderr)
	case "stdout":
		root.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log output %q: %w", cfg.Output, err)
		}
		root.SetOutput(f)
	}

	return nil
}

// WithLogger returns a context carrying logger, to be retrieved later with
// GetLogger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger stashed in ctx by WithLogger, or a fresh
// entry from the root logger if ctx carries none.
func GetLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return logger
	}
	return logrus.NewEntry(root)
}
