package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Config stores the logging configuration shared by all commands.
type Config struct {
	Output   string `toml:"output"`
	Severity string `toml:"severity"`
}

type contextKey struct{}

// Init sets up the logger for the period before the configuration is parsed.
func Init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.InfoLevel)
}

// Setup applies the parsed logging configuration to the standard logger.
func Setup(conf Config) error {
	switch conf.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		file, err := os.OpenFile(conf.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return trace.Wrap(err, "failed to open log output %q", conf.Output)
		}
		log.SetOutput(io.Writer(file))
	}

	switch strings.ToLower(conf.Severity) {
	case "", "info":
		log.SetLevel(log.InfoLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return trace.BadParameter("unknown log severity %q", conf.Severity)
	}

	return nil
}

// Standard returns the standard logger.
func Standard() log.FieldLogger {
	return log.StandardLogger()
}

// Get returns the logger stored in the context, or the standard one.
func Get(ctx context.Context) log.FieldLogger {
	if logger, ok := ctx.Value(contextKey{}).(log.FieldLogger); ok {
		return logger
	}
	return Standard()
}

// With returns a context carrying the given logger.
func With(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithField returns a context whose logger carries an extra field.
func WithField(ctx context.Context, key string, value interface{}) (context.Context, log.FieldLogger) {
	logger := Get(ctx).WithField(key, value)
	return With(ctx, logger), logger
}

// WithFields returns a context whose logger carries extra fields.
func WithFields(ctx context.Context, fields log.Fields) (context.Context, log.FieldLogger) {
	logger := Get(ctx).WithFields(fields)
	return With(ctx, logger), logger
}
