package network

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

const (
	DefaultUDPPort        = 7000
	DefaultUDPReadTimeout = 600 * time.Millisecond
	DefaultUDPRcvBuf      = 4 << 20
	maxDatagram           = 65535
)

// UDPSourceConfig configures a UDPSource.
type UDPSourceConfig struct {
	Address     string
	RcvBuf      int
	ReadTimeout time.Duration
	Factory     UDPSocketFactory
}

// UDPSource is a live byte stream from a UART-to-UDP bridge. A read that
// hits ReadTimeout returns (0, nil), the same as a serial port read timing
// out, so uart.Reader logs and retries it.
type UDPSource struct {
	conn    UDPSocket
	timeout time.Duration
	buf     []byte
	pending []byte

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// ListenUDP binds cfg.Address and returns a source reading from it.
func ListenUDP(cfg UDPSourceConfig) (*UDPSource, error) {
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", DefaultUDPPort)
	}
	if cfg.RcvBuf <= 0 {
		cfg.RcvBuf = DefaultUDPRcvBuf
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultUDPReadTimeout
	}
	if cfg.Factory == nil {
		cfg.Factory = RealUDPSocketFactory{}
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := cfg.Factory.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if err := conn.SetReadBuffer(cfg.RcvBuf); err != nil {
		monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", cfg.RcvBuf, err)
	}
	monitoring.Logf("UDP source listening on %s with receive buffer %d bytes", conn.LocalAddr(), cfg.RcvBuf)

	return &UDPSource{conn: conn, timeout: cfg.ReadTimeout, buf: make([]byte, maxDatagram)}, nil
}

// Read returns bytes from the current datagram, receiving a new one when it
// is used up.
func (s *UDPSource) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return 0, err
		}
		n, _, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, nil
			}
			return 0, err
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(n))
		s.pending = s.buf[:n]
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Packets and Bytes count datagrams received.
func (s *UDPSource) Packets() uint64 { return s.packets.Load() }
func (s *UDPSource) Bytes() uint64   { return s.bytes.Load() }

func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPSource) Close() error { return s.conn.Close() }
