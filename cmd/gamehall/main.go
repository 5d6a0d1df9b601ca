package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goodtune/gamehall/internal/config"
	"github.com/rs/zerolog"
)

func main() {
	Execute()
}

// setupLogger configures the logger based on configuration. The returned
// closer releases the log file, if one was opened.
func setupLogger(cfg config.LoggingConfig, stdout io.Writer) (zerolog.Logger, func() error, error) {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	out := stdout
	closer := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f.Close
	}

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: cfg.File != ""}).With().Timestamp().Logger(), closer, nil
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger(), closer, nil
}
