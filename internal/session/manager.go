package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/gpib-manager/backend/internal/instrument"
	"github.com/gpib-manager/backend/internal/models"
)

const (
	// DefaultLogCapacity bounds the rolling session log.
	DefaultLogCapacity = 200

	// DefaultHistoryCapacity bounds the distinct command history.
	DefaultHistoryCapacity = 50
)

// Manager owns the single instrument connection, the rolling log and the
// command history. One mutex guards all of it, including the full
// write/read round trip on the instrument handle.
type Manager struct {
	mu      sync.Mutex
	driver  instrument.Driver
	handle  instrument.Handle
	address string
	log     *logBuffer
	history *commandHistory
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the open and read timeout passed to the driver.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogCapacity overrides DefaultLogCapacity.
func WithLogCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.log = newLogBuffer(n)
		}
	}
}

// WithHistoryCapacity overrides DefaultHistoryCapacity.
func WithHistoryCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.history = newCommandHistory(n)
		}
	}
}

// WithClock replaces time.Now for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a disconnected session that opens handles with driver.
func NewManager(driver instrument.Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:  driver,
		log:     newLogBuffer(DefaultLogCapacity),
		history: newCommandHistory(DefaultHistoryCapacity),
		timeout: instrument.DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens address, replacing any live connection. The previous
// handle is closed first, so a failed attempt leaves the session
// disconnected.
func (m *Manager) Connect(address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			m.appendLocked(fmt.Sprintf("Close error on %s: %v", m.address, err))
		}
		m.handle = nil
		m.address = ""
	}

	resource, err := instrument.ResolveAddress(address)
	if err != nil {
		m.appendLocked(fmt.Sprintf("Connect error: %v", err))
		return "", &ConnectError{Address: address, Err: err}
	}

	h, err := m.driver.Open(resource, m.timeout)
	if err != nil {
		m.appendLocked(fmt.Sprintf("Connect error: %v", err))
		return "", &ConnectError{Address: resource, Err: err}
	}
	m.handle = h
	m.address = resource
	fmt.Printf("[Session] connected to %s via %s driver\n", resource, m.driver.Name())

	status := fmt.Sprintf("Connected to %s", resource)
	m.appendLocked(status)
	return status, nil
}

// Disconnect closes the live connection, if any.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}
	addr := m.address
	err := m.handle.Close()
	m.handle = nil
	m.address = ""
	m.appendLocked(fmt.Sprintf("Disconnected from %s", addr))
	fmt.Printf("[Session] disconnected from %s\n", addr)
	if err != nil {
		return fmt.Errorf("closing %s: %w", addr, err)
	}
	return nil
}

// IsConnected reports whether a handle is live.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// Address returns the resource of the live connection, or "".
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// AppendLog adds a timestamped message to the log.
func (m *Manager) AppendLog(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(message)
}

// RecordCommand adds cmd to the history unless it is already there.
func (m *Manager) RecordCommand(cmd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.add(cmd)
}

// Snapshot returns the newest logLimit log entries, the newest historyLimit
// commands and the connection status, all read under one lock. A limit
// <= 0 returns everything.
func (m *Manager) Snapshot(logLimit, historyLimit int) models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := models.StatusNotConnected
	if m.handle != nil {
		status = models.StatusConnected
	}
	return models.Snapshot{
		Log:       m.log.last(logLimit),
		History:   m.history.last(historyLimit),
		Status:    status,
		Address:   m.address,
		Connected: m.handle != nil,
	}
}

func (m *Manager) appendLocked(message string) {
	m.log.append(models.LogEntry{
		Timestamp: m.now().Format(models.LogTimeLayout),
		Message:   message,
	})
}
