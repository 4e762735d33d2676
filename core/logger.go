// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the logging contract used by models and middlewares.
package core

import (
	"io"
	"log/slog"
)

// Logger is the logging contract used across the ODM.
// A *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger is used when no logger is configured.
var nopLogger Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
