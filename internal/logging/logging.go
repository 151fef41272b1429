// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package logging configures the zerolog logger shared by the command and the
// engine packages.
package logging // import "mellium.im/jingle/internal/logging"

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Field names used across packages.
const (
	FieldComponent = "component"
	FieldSID       = "sid"
	FieldPeer      = "peer"
	FieldContent   = "content"
	FieldAction    = "action"
	FieldDialect   = "dialect"
	FieldState     = "state"
	FieldID        = "id"
)

// Config captures options for configuring the base logger.
type Config struct {
	Level   string    // log level ("debug", "info", etc.), defaults to info
	Output  io.Writer // defaults to os.Stderr
	Service string    // attached to every entry, defaults to "jingled"
	Console bool      // human readable output
}

var (
	mu   sync.Mutex
	base = zerolog.Nop()
)

// Configure replaces the base logger.
func Configure(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	service := cfg.Service
	if service == "" {
		service = "jingled"
	}

	l := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()

	mu.Lock()
	base = l
	mu.Unlock()
	return l
}

// Base returns the configured base logger. Until Configure is called it
// discards everything.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a child of l annotated with the component name.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str(FieldComponent, component).Logger()
}
