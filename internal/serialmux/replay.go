package serialmux

import (
	"io"
	"sync"
)

// ReplayPort presents a recorded byte stream as a read-only serial port so
// replays run through the same SerialMux as live data. Writes are
// discarded; an exhausted source reads as io.EOF, which ends Monitor.
type ReplayPort struct {
	mu     sync.Mutex
	src    io.Reader
	closed bool
}

func NewReplayPort(src io.Reader) *ReplayPort {
	return &ReplayPort{src: src}
}

func (p *ReplayPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return p.src.Read(b)
}

func (p *ReplayPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *ReplayPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
