// Package logger builds the zerolog logger used across the pipeline.
// Every event carries the elapsed time since an explicit run start, so
// log output reads like a timed processing trace without any
// process-wide state.
package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// elapsedHook stamps each event with the duration since the run began.
type elapsedHook struct {
	start time.Time
}

func (h elapsedHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Dur("elapsed", time.Since(h.start))
}

// New creates a logger writing structured JSON to w, with the elapsed
// hook seeded from start. Verbose enables debug-level events.
func New(w io.Writer, start time.Time, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(elapsedHook{start: start})
}

// NewConsole creates a human-readable console logger for CLI runs.
func NewConsole(w io.Writer, start time.Time, verbose bool) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return New(console, start, verbose)
}
