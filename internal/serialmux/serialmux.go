// Package serialmux owns the serial ports of a TI mmWave sensor: it sends the
// .cfg commands over the CLI port, reads frames from the data port and fans
// the decoded frames out to any number of subscribers.
package serialmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrPortBusy is returned when a command would interleave with frame
	// reads on a single-COM device.
	ErrPortBusy = errors.New("serial port is being monitored")
	// ErrAlreadyMonitoring is returned by a second concurrent Monitor call.
	ErrAlreadyMonitoring = errors.New("monitor already running")
)

// DefaultSubscriberBuffer is the channel depth of each subscriber.
const DefaultSubscriberBuffer = 8

// Options configures a SerialMux. Zero values pick defaults.
type Options struct {
	Device cfg.Device
	// Clock paces the command sink.
	Clock timeutil.Clock
	// Reader configures frame synchronisation on the data port.
	Reader uart.Options
	// CLIBaudRate is the rate the CLI port was opened at. It selects the
	// per-character delay and tracks baudRate commands.
	CLIBaudRate      int
	SubscriberBuffer int
}

// SerialMux is a generic serial port multiplexer: one goroutine reads frames
// from the data port and every subscriber gets a copy of each usable frame.
type SerialMux[T SerialPorter] struct {
	cli    T
	data   T
	shared bool
	opts   Options
	reader *uart.Reader

	subscribers  map[string]chan *parse.Frame
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	monitoring atomic.Bool
	cliBaud    atomic.Int64
	latest     atomic.Pointer[parse.Frame]
	dropped    atomic.Uint64
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving decoded frames. The
	// channel ID is used to identify the unique channel when unsubscribing.
	Subscribe() (string, <-chan *parse.Frame)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes one CLI command and returns the acknowledgement lines.
	SendCommand(string) ([]string, error)
	// SendConfig transmits a whole .cfg, pacing lines the way the device needs.
	SendConfig(context.Context, []string) ([]string, error)
	// Monitor reads frames from the data port and publishes them.
	Monitor(context.Context) error
	// Latest returns the most recent usable frame, or nil.
	Latest() *parse.Frame
	// Stats reports frame synchronisation counters.
	Stats() Stats
	// Close closes all subscribed channels and the serial ports.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats extends the reader counters with fan-out drops.
type Stats struct {
	uart.Stats
	DroppedDeliveries uint64 `json:"dropped_deliveries"`
	Subscribers       int    `json:"subscribers"`
}

// NewSerialMux creates a SerialMux for a device with separate CLI and data
// ports.
func NewSerialMux[T SerialPorter](cli, data T, opts Options) *SerialMux[T] {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.CLIBaudRate <= 0 {
		opts.CLIBaudRate = DefaultCLIBaudRate
	}
	s := &SerialMux[T]{
		cli:         cli,
		data:        data,
		opts:        opts,
		reader:      uart.NewReader(data, opts.Reader),
		subscribers: make(map[string]chan *parse.Frame),
	}
	s.cliBaud.Store(int64(opts.CLIBaudRate))
	return s
}

// NewSingleCOMSerialMux creates a SerialMux for a device that carries CLI
// and data on one port.
func NewSingleCOMSerialMux[T SerialPorter](port T, opts Options) *SerialMux[T] {
	s := NewSerialMux(port, port, opts)
	s.shared = true
	return s
}

// randomID generates a subscriber channel ID.
func randomID() string {
	return uuid.NewString()
}

func (s *SerialMux[T]) Subscribe() (string, <-chan *parse.Frame) {
	id := randomID()
	ch := make(chan *parse.Frame, s.opts.SubscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.isClosing() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) Latest() *parse.Frame { return s.latest.Load() }

// CLIBaudRate is the CLI port rate, following any baudRate command sent.
func (s *SerialMux[T]) CLIBaudRate() int { return int(s.cliBaud.Load()) }

func (s *SerialMux[T]) Stats() Stats {
	s.subscriberMu.Lock()
	n := len(s.subscribers)
	s.subscriberMu.Unlock()
	return Stats{Stats: s.reader.Stats(), DroppedDeliveries: s.dropped.Load(), Subscribers: n}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Monitor reads frames until ctx is done, the port fails or the mux is
// closed. Frames whose header or TLV headers could not be read are logged
// and not published, so Latest keeps the last good frame.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	if !s.monitoring.CompareAndSwap(false, true) {
		return ErrAlreadyMonitoring
	}
	defer s.monitoring.Store(false)

	for {
		f, err := s.reader.Next(ctx)
		if err != nil {
			if s.isClosing() || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !f.Error.Usable() {
			monitoring.Logf("dropping frame %d: %s", f.FrameNumber, f.ErrorSummary())
			continue
		}
		s.latest.Store(f)
		s.publish(f)
	}
}

func (s *SerialMux[T]) publish(f *parse.Frame) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- f:
		default:
			// if the channel is full skip so a slow subscriber cannot stall the reader
			s.dropped.Add(1)
		}
	}
}

// SendCommand sends one CLI command and reads back its acknowledgement.
func (s *SerialMux[T]) SendCommand(command string) ([]string, error) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.shared && s.monitoring.Load() {
		return nil, ErrPortBusy
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n" // ensure command ends with a newline
	}
	if err := s.writeLine(command); err != nil {
		return nil, err
	}
	return s.readAck(), nil
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	err := s.cli.Close()
	if !s.shared {
		if dataErr := s.data.Close(); err == nil {
			err = dataErr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
