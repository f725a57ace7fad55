// stub_driver.go - Scripted instrument driver for testing
package testutil

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gpib-manager/backend/internal/instrument"
)

// ErrStubIO is the default error injected by StubDriver.
var ErrStubIO = errors.New("stub I/O failure")

// StubDriver implements instrument.Driver. Every read returns Response
// unless an error is injected; every write is recorded.
type StubDriver struct {
	Response string
	OpenErr  error
	ReadErr  error

	mu       sync.Mutex
	failOn   string
	failErr  error
	opened   []string
	writes   []string
	reads    int
	handles  []*StubHandle
	timeouts []time.Duration
}

// NewStubDriver creates a driver whose reads answer response.
func NewStubDriver(response string) *StubDriver {
	return &StubDriver{Response: response}
}

func (d *StubDriver) Name() string { return "stub" }

// FailWritesContaining makes writes whose command contains substr fail with err.
func (d *StubDriver) FailWritesContaining(substr string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrStubIO
	}
	d.failOn = substr
	d.failErr = err
}

func (d *StubDriver) Open(address string, timeout time.Duration) (instrument.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, address)
	d.timeouts = append(d.timeouts, timeout)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	h := &StubHandle{driver: d}
	d.handles = append(d.handles, h)
	return h, nil
}

// Opened returns the addresses passed to Open, in order.
func (d *StubDriver) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Writes returns every command written through any handle, in order.
func (d *StubDriver) Writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.writes...)
}

// Reads returns the number of Read calls.
func (d *StubDriver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Handles returns the handles opened so far.
func (d *StubDriver) Handles() []*StubHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*StubHandle(nil), d.handles...)
}

// OpenHandles counts handles that were opened and not closed.
func (d *StubDriver) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, h := range d.handles {
		if !h.closed {
			n++
		}
	}
	return n
}

// StubHandle is the handle returned by StubDriver.
type StubHandle struct {
	driver *StubDriver
	closed bool
}

func (h *StubHandle) Write(cmd string) error {
	d := h.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.closed {
		return instrument.ErrClosed
	}
	if d.failOn != "" && strings.Contains(cmd, d.failOn) {
		return d.failErr
	}
	d.writes = append(d.writes, cmd)
	return nil
}

func (h *StubHandle) Read(timeout time.Duration) (string, error) {
	d := h.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.closed {
		return "", instrument.ErrClosed
	}
	d.reads++
	if d.ReadErr != nil {
		return "", d.ReadErr
	}
	return d.Response, nil
}

func (h *StubHandle) Close() error {
	d := h.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *StubHandle) Closed() bool {
	d := h.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	return h.closed
}

// Timeouts returns the timeouts passed to Open, in order.
func (d *StubDriver) Timeouts() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.timeouts...)
}
