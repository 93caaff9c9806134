// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package logger provides structured logging using zerolog.
//
// The exporter keeps one process-wide logger. Components that need to carry
// their own context (the exporter plugin, the HTTP shell, the MQTT source)
// take a child logger from Component and log through it.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatConsole writes human readable output through zerolog.ConsoleWriter.
	FormatConsole = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
)

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

// Initialize sets up the global logger with the specified level and format.
// An empty or unknown format falls back to console output.
//
// The level is applied through zerolog's global level so that component
// loggers created earlier follow later SetLevel calls.
func Initialize(level string, format ...string) {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if len(format) > 0 && strings.EqualFold(format[0], FormatJSON) {
		output = os.Stdout
	}

	zerolog.SetGlobalLevel(logLevel)

	mu.Lock()
	log = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
	mu.Unlock()
}

// parseLogLevel converts string log level to zerolog.Level
func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "panic":
		return zerolog.PanicLevel, nil
	default:
		return zerolog.InfoLevel, nil
	}
}

// SetLevel changes the level of every logger. Used on config reload.
func SetLevel(level string) {
	logLevel, _ := parseLogLevel(level)
	zerolog.SetGlobalLevel(logLevel)
}

// Level returns the current level.
func Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

// Component returns a child of the global logger tagged with component=name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("component", name).Logger()
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// With creates a child logger with additional fields
func With() zerolog.Context {
	return Get().With()
}

// SetOutput sets the output writer for the logger
func SetOutput(w io.Writer) {
	mu.Lock()
	log = log.Output(w)
	mu.Unlock()
}
