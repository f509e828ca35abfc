package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens ports with go.bug.st/serial.
type RealSerialPortFactory struct{}

func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens path and applies the read timeout from opts.
func (RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	return OpenPort(path, opts)
}

// OpenPort opens a real serial port with the given options.
func OpenPort(path string, opts PortOptions) (serial.Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	// Stale bytes from a previous session would be sent ahead of the cfg.
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset output buffer on %s: %w", path, err)
	}
	return port, nil
}

// OpenSerialMux opens the CLI and data ports of a two-port device through f.
func OpenSerialMux(f SerialPortFactory, cliPath, dataPath string, cliOpts, dataOpts PortOptions, opts Options) (*SerialMux[SerialPorter], error) {
	if cliPath == dataPath {
		return nil, fmt.Errorf("%s needs separate CLI and data ports, both set to %s", opts.Device.Name, cliPath)
	}
	cli, err := f.Open(cliPath, cliOpts)
	if err != nil {
		return nil, err
	}
	data, err := f.Open(dataPath, dataOpts)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return NewSerialMux[SerialPorter](cli, data, opts), nil
}

// OpenSingleCOMSerialMux opens the one port of a single-COM device through f.
func OpenSingleCOMSerialMux(f SerialPortFactory, path string, portOpts PortOptions, opts Options) (*SerialMux[SerialPorter], error) {
	port, err := f.Open(path, portOpts)
	if err != nil {
		return nil, err
	}
	return NewSingleCOMSerialMux[SerialPorter](port, opts), nil
}

func NewRealSerialMux(cliPath, dataPath string, cliOpts, dataOpts PortOptions, opts Options) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(RealSerialPortFactory{}, cliPath, dataPath, cliOpts, dataOpts, opts)
}

func NewRealSingleCOMSerialMux(path string, portOpts PortOptions, opts Options) (*SerialMux[SerialPorter], error) {
	return OpenSingleCOMSerialMux(RealSerialPortFactory{}, path, portOpts, opts)
}
