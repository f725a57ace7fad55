package instrument

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used for Prologix GPIB-USB adapters when none is set.
const DefaultBaudRate = 115200

func init() {
	Register("prologix", func(opts Options) (Driver, error) {
		if opts.SerialPort == "" {
			return nil, fmt.Errorf("prologix driver requires a serial port")
		}
		if opts.BaudRate == 0 {
			opts.BaudRate = DefaultBaudRate
		}
		return &SerialDriver{port: opts.SerialPort, baud: opts.BaudRate, debug: opts.Debug}, nil
	})
}

// SerialDriver reaches instruments through a Prologix GPIB-USB controller
// exposed as a virtual COM port.
type SerialDriver struct {
	port  string
	baud  int
	debug bool
}

func (d *SerialDriver) Name() string { return "prologix" }

// Open opens the serial port and addresses the instrument named by address.
func (d *SerialDriver) Open(address string, timeout time.Duration) (Handle, error) {
	addr, err := ParseGPIBAddress(address)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", d.port, err)
	}
	h, err := newPrologixHandle(&serialTransport{Port: port}, addr, timeout, d.debug)
	if err != nil {
		port.Close()
		return nil, err
	}
	return h, nil
}

// serialTransport maps the serial package's (0, nil) timeout result to ErrTimeout.
type serialTransport struct {
	serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error) {
	n, err := t.Port.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// ListSerialPorts returns the serial ports present on this machine.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
