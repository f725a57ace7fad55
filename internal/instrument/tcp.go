package instrument

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// PrologixTCPPort is the fixed port of the Prologix GPIB-Ethernet controller.
const PrologixTCPPort = 1234

func init() {
	Register("prologix-tcp", func(opts Options) (Driver, error) {
		return &TCPDriver{host: opts.Host, debug: opts.Debug}, nil
	})
}

// TCPDriver reaches instruments through a Prologix GPIB-Ethernet controller.
// The controller host comes from the driver options or from a
// "visa://host/GPIB0::10::INSTR" style address.
type TCPDriver struct {
	host  string
	debug bool
}

func (d *TCPDriver) Name() string { return "prologix-tcp" }

// Open dials the controller and addresses the instrument.
func (d *TCPDriver) Open(address string, timeout time.Duration) (Handle, error) {
	host := remoteHost(address)
	if host == "" {
		host = d.host
	}
	if host == "" {
		return nil, fmt.Errorf("no controller host for %q", address)
	}
	addr, err := ParseGPIBAddress(address)
	if err != nil {
		return nil, err
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, fmt.Sprint(PrologixTCPPort))
	}
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing prologix controller %s: %w", host, err)
	}
	h, err := newPrologixHandle(&tcpTransport{Conn: conn, timeout: timeout}, addr, timeout, d.debug)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return h, nil
}

// remoteHost extracts "host" from "visa://host/RESOURCE".
func remoteHost(address string) string {
	const prefix = "visa://"
	if !strings.HasPrefix(strings.ToLower(address), prefix) {
		return ""
	}
	rest := address[len(prefix):]
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i]
	}
	return ""
}

type tcpTransport struct {
	net.Conn
	timeout time.Duration
}

func (t *tcpTransport) SetReadTimeout(d time.Duration) error {
	t.timeout = d
	return nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	if t.timeout > 0 {
		if err := t.Conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := t.Conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrTimeout
	}
	return n, err
}
