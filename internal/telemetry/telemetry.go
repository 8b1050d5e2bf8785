// Package telemetry wraps log/slog with the component tagging usbdev's
// packages use for structured logging. It is internal because the logging
// backend is an external collaborator: applications may redirect the sink,
// but the wrapper itself is not part of usbdev's public surface.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies the subsystem that produced a log record.
type Component string

// Components used across the stack.
const (
	ComponentDevice     Component = "device"
	ComponentControl    Component = "control"
	ComponentAllocator  Component = "allocator"
	ComponentDescriptor Component = "descriptor"
	ComponentHAL        Component = "hal"
	ComponentClass      Component = "class"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
	mu            sync.RWMutex
)

func init() {
	level.Set(slog.LevelWarn)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel sets the minimum log level for all usbdev logging.
func SetLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(l)
}

// Level returns the current minimum log level.
func Level() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level.Level()
}

// SetLogger replaces the default logger with a custom one.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// New creates a text logger writing to w at the current level.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs a debug-level record tagged with component.
func Debug(component Component, msg string, args ...any) {
	log(slog.LevelDebug, component, msg, args...)
}

// Info logs an info-level record tagged with component.
func Info(component Component, msg string, args ...any) {
	log(slog.LevelInfo, component, msg, args...)
}

// Warn logs a warn-level record tagged with component.
func Warn(component Component, msg string, args ...any) {
	log(slog.LevelWarn, component, msg, args...)
}

// Error logs an error-level record tagged with component.
func Error(component Component, msg string, args ...any) {
	log(slog.LevelError, component, msg, args...)
}

func log(lvl slog.Level, component Component, msg string, args ...any) {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	logger.Log(context.Background(), lvl, msg, append([]any{"component", string(component)}, args...)...)
}
