package session

import (
	"fmt"
	"strings"
)

// Send writes command to the instrument and reads its reply. The command
// is recorded in the history and both directions are logged. The raw reply
// is returned as read from the driver.
func (m *Manager) Send(command string) (string, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return "", ErrEmptyCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.roundTripLocked(cmd)
	if err != nil {
		m.appendLocked(fmt.Sprintf("Send error: %v", err))
		return "", err
	}
	m.history.add(cmd)
	m.appendLocked("> " + cmd)
	m.appendLocked("< " + resp)
	return resp, nil
}

// Query is Send without the history update, for scripted queries.
func (m *Manager) Query(command string) (string, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return "", ErrEmptyCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.roundTripLocked(cmd)
	if err != nil {
		m.appendLocked(fmt.Sprintf("Query error: %v", err))
		return "", err
	}
	m.appendLocked("> " + cmd)
	m.appendLocked("< " + resp)
	return resp, nil
}

// Write sends command without reading a reply.
func (m *Manager) Write(command string) error {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return ErrEmptyCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		m.appendLocked(fmt.Sprintf("Write error: %v", ErrNotConnected))
		return ErrNotConnected
	}
	if err := m.handle.Write(cmd); err != nil {
		derr := &DriverError{Op: "write", Command: cmd, Err: err}
		m.appendLocked(fmt.Sprintf("Write error: %v", derr))
		return derr
	}
	m.appendLocked("> " + cmd)
	return nil
}

func (m *Manager) roundTripLocked(cmd string) (string, error) {
	if m.handle == nil {
		return "", ErrNotConnected
	}
	if err := m.handle.Write(cmd); err != nil {
		return "", &DriverError{Op: "write", Command: cmd, Err: err}
	}
	resp, err := m.handle.Read(m.timeout)
	if err != nil {
		return "", &DriverError{Op: "read", Command: cmd, Err: err}
	}
	return resp, nil
}
