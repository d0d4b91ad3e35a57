package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New builds the process logger. An unknown level falls back to info.
func New(cfg Config) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New writing to out.
func NewWithOutput(cfg Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', defaulting to 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Redact keeps only the last four characters of a secret.
func Redact(secret string) string {
	if len(secret) <= 4 {
		return "..." + strings.Repeat("*", len(secret))
	}
	return "..." + secret[len(secret)-4:]
}
