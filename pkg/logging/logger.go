// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for perfscope components.
//
// The package is a thin layer over the standard library slog package:
// stderr text output by default (Unix CLI convention), optional JSON
// output to an arbitrary writer for embedding the engine in a service.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("analysis started", "file", fileID)
//	logger.Error("parse failed", "file", fileID, "error", err)
//
// # Thread Safety
//
// Logger is safe for concurrent use; the underlying slog handlers are
// thread-safe.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operations (analysis start/end, state changes).
	LevelInfo

	// LevelWarn is for recoverable issues (discarded candidates, degraded mode).
	LevelWarn

	// LevelError is for operation failures where the system continues.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level. Unknown names default to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity to emit.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// Writer receives log output. Defaults to os.Stderr.
	Writer io.Writer

	// JSON selects JSON output instead of logfmt-style text.
	JSON bool
}

// New creates a Logger from the config.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

var (
	defaultOnce   sync.Once
	defaultLogger *slog.Logger
)

// Default returns a shared stderr logger at Info level.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(Config{Level: LevelInfo})
	})
	return defaultLogger
}
