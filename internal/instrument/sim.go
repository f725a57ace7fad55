package instrument

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// SimIdentity is the *IDN? reply of the simulated generator.
const SimIdentity = "GPIBSIM,SG-1000,SIM0001,1.0"

func init() {
	Register("sim", func(opts Options) (Driver, error) {
		return &SimDriver{}, nil
	})
}

// SimDriver is an in-memory signal generator. Settings written with a
// parameter are remembered and reported back by the matching query. Only
// GPIB resources open.
type SimDriver struct{}

func (d *SimDriver) Name() string { return "sim" }

func (d *SimDriver) Open(address string, timeout time.Duration) (Handle, error) {
	if _, err := ParseGPIBAddress(address); err != nil {
		return nil, err
	}
	return &simHandle{settings: make(map[string]string)}, nil
}

type simHandle struct {
	mu       sync.Mutex
	settings map[string]string
	pending  []string
	closed   bool
}

func (h *simHandle) Write(cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for _, part := range strings.Split(cmd, ";") {
		h.execute(strings.TrimSpace(part))
	}
	return nil
}

func (h *simHandle) execute(cmd string) {
	if cmd == "" {
		return
	}
	header, args, _ := strings.Cut(cmd, " ")
	key := strings.ToUpper(strings.TrimPrefix(header, ":"))
	switch key {
	case "*RST":
		clear(h.settings)
		return
	case "*CLS":
		return
	case "*IDN?":
		h.pending = append(h.pending, SimIdentity)
		return
	case "*OPC?":
		h.pending = append(h.pending, "1")
		return
	case "SYST:ERR?", "SYSTEM:ERROR?", "SYST:ERR:NEXT?":
		h.pending = append(h.pending, `+0,"No error"`)
		return
	}
	if q, ok := strings.CutSuffix(key, "?"); ok {
		v, ok := h.settings[q]
		if !ok {
			v = "0"
		}
		h.pending = append(h.pending, v)
		return
	}
	h.settings[key] = strings.TrimSpace(args)
}

// Read returns the oldest queued reply, or ErrTimeout at once when there is none.
func (h *simHandle) Read(timeout time.Duration) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrClosed
	}
	if len(h.pending) == 0 {
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	resp := h.pending[0]
	h.pending = h.pending[1:]
	return resp, nil
}

func (h *simHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
