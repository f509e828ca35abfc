package parse

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the parse package.
// Pass nil for any writer to disable that stream.
//
//   - ops: corrupt headers, length mismatches, decoder failures
//   - diag: TLV types the registry does not know about
//   - trace: per-TLV dispatch, known-but-unused types
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[mmwave/parse] ", ops)
	diagLogger = newLogger("[mmwave/parse] ", diag)
	traceLogger = newLogger("[mmwave/parse] ", trace)
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
