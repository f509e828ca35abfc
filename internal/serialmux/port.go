package serialmux

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports whose reads give up after a
// timeout, returning zero bytes and no error.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// ModeSetter is implemented by ports that can change line settings while
// open. The CLI port needs it to follow a baudRate command.
type ModeSetter interface {
	SetMode(mode *serial.Mode) error
}

// InputResetter is implemented by ports that can drop unread input.
type InputResetter interface {
	ResetInputBuffer() error
}

// SerialPortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (SerialPorter, error)
}
