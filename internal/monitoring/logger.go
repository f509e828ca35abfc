// Package monitoring is the shared log sink for the service plumbing:
// serial ports, HTTP handlers, storage and network sources. Decoder
// diagnostics go through the mmwave log streams instead.
package monitoring

import (
	"io"
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes one line through the current logger.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the logger and returns the previous one so callers can
// restore it. nil mutes logging.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	mu.Lock()
	prev := logf
	logf = f
	mu.Unlock()
	return prev
}

// WriterLogger returns a logger writing to w with prefix, timestamped to the
// microsecond like the mmwave streams. A nil w mutes it.
func WriterLogger(w io.Writer, prefix string) func(format string, v ...interface{}) {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds).Printf
}
