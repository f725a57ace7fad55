//go:build visa

package instrument

import (
	"errors"
	"fmt"
	"strings"
	"time"

	vi "github.com/jpoirier/visa"
)

// visaReadSize is the largest reply read from a VISA session in one call.
const visaReadSize = 4096

func init() {
	Register("visa", func(opts Options) (Driver, error) {
		return &VISADriver{}, nil
	})
}

// VISADriver opens resources through the system NI-VISA library.
type VISADriver struct{}

func (d *VISADriver) Name() string { return "visa" }

// Open opens a session to the default resource manager and then to address.
func (d *VISADriver) Open(address string, timeout time.Duration) (Handle, error) {
	rm, status := vi.OpenDefaultRM()
	if status < vi.SUCCESS {
		return nil, errors.New("could not open a session to the VISA Resource Manager")
	}
	instr, status := rm.Open(address, vi.NULL, vi.NULL)
	if status < vi.SUCCESS {
		rm.Close()
		return nil, fmt.Errorf("opening VISA session to %s failed with status %d", address, status)
	}
	return &visaHandle{rm: rm, instr: instr}, nil
}

type visaHandle struct {
	rm     vi.Session
	instr  vi.Object
	closed bool
}

func (h *visaHandle) Write(cmd string) error {
	if h.closed {
		return ErrClosed
	}
	b := []byte(strings.TrimRight(cmd, "\r\n") + "\n")
	_, status := h.instr.Write(b, uint32(len(b)))
	if status < vi.SUCCESS {
		return fmt.Errorf("error writing to the device: %v", status)
	}
	return nil
}

// Read relies on the session's own VISA timeout attribute; timeout is unused.
func (h *visaHandle) Read(timeout time.Duration) (string, error) {
	if h.closed {
		return "", ErrClosed
	}
	b, _, status := h.instr.Read(visaReadSize)
	if status < vi.SUCCESS {
		return "", fmt.Errorf("read failed with error code %x", status)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

func (h *visaHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.instr.Close()
	h.rm.Close()
	return nil
}
