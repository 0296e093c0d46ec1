package diag

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// NewLogger returns a logger writing severity-colored text lines to stderr.
// An unknown level falls back to info.
func NewLogger(level string, color bool) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{
		ForceColors:   color,
		DisableColors: !color,
		FullTimestamp: true,
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// Discard returns a logger that drops everything. Used by tests and library callers
// that do not care about progress output.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
