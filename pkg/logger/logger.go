// Package logger provides structured logging for the yar services.
// Built on top of zerolog with contextual fields and the log level names the
// services expose on their command lines. Supports dual output to console and
// a JSON log file, plus an optional syslog unix domain socket sink.
package logger

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. The level is one of DEBUG, INFO,
// WARNING, ERROR, CRITICAL or FATAL (case-insensitive); unknown levels fall
// back to ERROR. logFile, when non-empty, adds a JSON file sink; syslogPath,
// when non-empty, adds a unix domain socket syslog sink.
func Init(level, logFile, syslogPath string) error {
	zerolog.SetGlobalLevel(parseLevel(level))

	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		writers = append(writers, f)
	}

	if syslogPath != "" {
		w, err := syslog.Dial("unixgram", syslogPath, syslog.LOG_INFO|syslog.LOG_DAEMON, "yar")
		if err != nil {
			return fmt.Errorf("failed to dial syslog socket %s: %w", syslogPath, err)
		}
		writers = append(writers, zerolog.SyslogLevelWriter(w))
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return nil
}

// parseLevel maps a yar level name onto a zerolog level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.ErrorLevel
	}
}

// WithRequestID creates a logger with a request ID field.
// Used for tracing requests across service boundaries and operations.
func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("request_id", requestID).Logger()
}

// WithKeyID creates a logger with a mac key identifier field.
func WithKeyID(keyID string) zerolog.Logger {
	return log.With().Str("mac_key_identifier", keyID).Logger()
}
