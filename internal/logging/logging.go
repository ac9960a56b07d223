// Package logging builds the process logger from configuration
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// New creates a logger for cfg. Unknown levels fall back to info, and a log
// file that cannot be opened falls back to stdout with a warning.
func New(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	switch cfg.Output {
	case "file":
		if cfg.FilePath == "" {
			break
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Warnf("failed to open log file %s: %v, using stdout", cfg.FilePath, err)
			break
		}
		log.SetOutput(file)
	case "stderr":
		log.SetOutput(os.Stderr)
	case "discard":
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stdout)
	}

	return log
}
