// Package mmwave holds the session-level glue between the mmWave uart
// reader, the TLV parser and the rest of the service.
package mmwave

import (
	"io"
	"log"
	"sync"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for this package and
// the parse and uart subpackages. Pass nil for any writer to disable it.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	opsLogger = newLogger("[mmwave] ", w.Ops)
	diagLogger = newLogger("[mmwave] ", w.Diag)
	traceLogger = newLogger("[mmwave] ", w.Trace)
	mu.Unlock()

	parse.SetLogWriters(w.Ops, w.Diag, w.Trace)
	uart.SetLogWriters(w.Ops, w.Diag, w.Trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream (actionable warnings, errors, lifecycle events).
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream (day-to-day diagnostics).
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream (per-frame telemetry).
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
