// Package instrument provides the drivers used to reach a GPIB instrument.
//
// A Driver opens a Handle for a VISA-style resource address. Handles are not
// safe for concurrent use; callers serialize access to them.
package instrument

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is the open and read timeout used when none is configured.
const DefaultTimeout = 5000 * time.Millisecond

// ErrTimeout is returned by Handle.Read when no reply arrived in time.
var ErrTimeout = errors.New("timeout expired before operation completed")

// ErrClosed is returned when a closed handle is used.
var ErrClosed = errors.New("instrument handle is closed")

// Driver opens instrument handles.
type Driver interface {
	Name() string
	Open(address string, timeout time.Duration) (Handle, error)
}

// Handle is an open connection to a single instrument.
type Handle interface {
	Write(cmd string) error
	Read(timeout time.Duration) (string, error)
	Close() error
}

// Factory builds a driver from its options.
type Factory func(opts Options) (Driver, error)

// Options configures driver construction.
type Options struct {
	SerialPort string
	BaudRate   int
	Host       string
	Debug      bool
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver factory available by name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New returns the driver registered under name.
func New(name string, opts Options) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown instrument driver %q (available: %v)", name, Drivers())
	}
	return f(opts)
}

// Drivers lists the registered driver names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
