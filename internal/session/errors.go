package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when I/O is attempted without a live connection.
	ErrNotConnected = errors.New("no device connected")

	// ErrEmptyCommand is returned for blank commands; the driver is never called.
	ErrEmptyCommand = errors.New("empty command")
)

// ConnectError reports that the driver could not open the addressed resource.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DriverError reports a failed write or read on an open connection,
// including read timeouts.
type DriverError struct {
	Op      string // "write" or "read"
	Command string
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }
