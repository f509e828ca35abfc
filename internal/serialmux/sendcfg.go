package serialmux

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

const (
	// LineDelay precedes every cfg line.
	LineDelay = 30 * time.Millisecond
	// CharDelay separates characters at FastCLIBaudRate, where the device
	// drops characters sent back to back.
	CharDelay = time.Millisecond
	// SettleDelay follows the last line, before the input buffer is reset.
	SettleDelay     = 30 * time.Millisecond
	FastCLIBaudRate = 1250000

	maxAckLineBytes = 1024
)

// SendConfig transmits cfg lines over the CLI port. Blank lines and lines
// starting with % are skipped. Each line is preceded by LineDelay and
// followed by the device's acknowledgement lines; a baudRate line switches
// the CLI port to the new rate once acknowledged. It returns the
// acknowledgement lines read, in order.
func (s *SerialMux[T]) SendConfig(ctx context.Context, lines []string) ([]string, error) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.shared && s.monitoring.Load() {
		return nil, ErrPortBusy
	}

	clock := s.opts.Clock
	var acks []string
	sent := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "%") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return acks, err
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}

		clock.Sleep(LineDelay)
		if err := s.writeLine(line); err != nil {
			return acks, fmt.Errorf("failed to send %q: %w", strings.TrimSpace(line), err)
		}
		ack := s.readAck()
		for _, a := range ack {
			monitoring.Logf("cli: %s", a)
		}
		acks = append(acks, ack...)
		sent++

		if fields := strings.Fields(line); fields[0] == "baudRate" {
			if err := s.switchCLIBaud(fields); err != nil {
				return acks, err
			}
		}
	}

	clock.Sleep(SettleDelay)
	if r, ok := any(s.cli).(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return acks, fmt.Errorf("failed to reset CLI input buffer: %w", err)
		}
	}
	monitoring.Logf("sent %d cfg lines to %s", sent, s.opts.Device.Name)
	return acks, nil
}

func (s *SerialMux[T]) switchCLIBaud(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("invalid baud rate: baudRate line has no value")
	}
	baud, err := strconv.Atoi(fields[1])
	if err != nil || baud <= 0 {
		return fmt.Errorf("invalid baud rate %q", fields[1])
	}
	if ms, ok := any(s.cli).(ModeSetter); ok {
		mode, err := PortOptions{BaudRate: baud}.SerialMode()
		if err != nil {
			return err
		}
		if err := ms.SetMode(mode); err != nil {
			return fmt.Errorf("failed to switch CLI port to %d baud: %w", baud, err)
		}
	} else {
		monitoring.Logf("CLI port cannot change mode, staying at %d baud", s.CLIBaudRate())
		return nil
	}
	s.cliBaud.Store(int64(baud))
	monitoring.Logf("CLI port switched to %d baud", baud)
	return nil
}

// writeLine writes line to the CLI port, one character at a time at
// FastCLIBaudRate.
func (s *SerialMux[T]) writeLine(line string) error {
	if s.CLIBaudRate() != FastCLIBaudRate {
		n, err := s.cli.Write([]byte(line))
		if err != nil {
			return err
		}
		if n != len(line) {
			return ErrWriteFailed
		}
		return nil
	}
	for i := 0; i < len(line); i++ {
		s.opts.Clock.Sleep(CharDelay)
		n, err := s.cli.Write([]byte{line[i]})
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrWriteFailed
		}
	}
	return nil
}

// readAck reads the acknowledgement lines for one command. A line cut short
// by a read timeout is returned as read; a missing ack is not an error.
func (s *SerialMux[T]) readAck() []string {
	n := s.opts.Device.AckLines()
	acks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, ok := s.readLine()
		if !ok {
			monitoring.Logf("no acknowledgement from %s after %d of %d lines", s.opts.Device.Name, i, n)
			break
		}
		acks = append(acks, line)
	}
	return acks
}

// readLine reads up to and including '\n'. It reports false when the port
// timed out or failed before any byte arrived.
func (s *SerialMux[T]) readLine() (string, bool) {
	var sb strings.Builder
	b := make([]byte, 1)
	for sb.Len() < maxAckLineBytes {
		n, err := s.cli.Read(b)
		if n == 0 || err != nil {
			break
		}
		if b[0] == '\n' {
			return strings.TrimRight(sb.String(), "\r"), true
		}
		sb.WriteByte(b[0])
	}
	return strings.TrimRight(sb.String(), "\r"), sb.Len() > 0
}
