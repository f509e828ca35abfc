package uart

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the uart package.
// Pass nil for any writer to disable that stream.
//
//   - ops: read timeouts, implausible frame lengths, short frames
//   - diag: resync statistics
//   - trace: one line per frame read
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[mmwave/uart] ", ops)
	diagLogger = newLogger("[mmwave/uart] ", diag)
	traceLogger = newLogger("[mmwave/uart] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}

// DO NOT add Debugf. Each callsite picks opsf, diagf, or tracef.
