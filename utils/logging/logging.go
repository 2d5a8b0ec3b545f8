// Package logging builds the process loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// switchWriter lets loggers created at package init follow a later change of
// output format.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

var output = &switchWriter{w: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}}

// New returns a logger tagged with the module name.
func New(module string) zerolog.Logger {
	return zerolog.New(output).With().Timestamp().Str("module", module).Logger()
}

// SetLevel sets the global level from its name. Unknown names select info.
func SetLevel(name string) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// SetJSON switches every logger to plain JSON lines on w.
func SetJSON(w io.Writer) {
	output.mu.Lock()
	defer output.mu.Unlock()
	output.w = w
}
