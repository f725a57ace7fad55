package session

import (
	"slices"

	"github.com/gpib-manager/backend/internal/models"
)

// logBuffer keeps the most recent entries, evicting the oldest first.
type logBuffer struct {
	entries  []models.LogEntry
	capacity int
}

func newLogBuffer(capacity int) *logBuffer {
	return &logBuffer{
		entries:  make([]models.LogEntry, 0, capacity),
		capacity: capacity,
	}
}

func (b *logBuffer) append(e models.LogEntry) {
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, e)
}

// last returns a copy of the newest n entries in order; n <= 0 means all.
func (b *logBuffer) last(n int) []models.LogEntry {
	return tail(b.entries, n)
}

func (b *logBuffer) len() int { return len(b.entries) }

// commandHistory is an insertion-ordered set of distinct commands.
type commandHistory struct {
	commands []string
	capacity int
}

func newCommandHistory(capacity int) *commandHistory {
	return &commandHistory{
		commands: make([]string, 0, capacity),
		capacity: capacity,
	}
}

// add appends cmd unless it is already present. It reports whether cmd was added.
func (h *commandHistory) add(cmd string) bool {
	if slices.Contains(h.commands, cmd) {
		return false
	}
	if len(h.commands) == h.capacity {
		copy(h.commands, h.commands[1:])
		h.commands = h.commands[:len(h.commands)-1]
	}
	h.commands = append(h.commands, cmd)
	return true
}

func (h *commandHistory) last(n int) []string {
	return tail(h.commands, n)
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	out := make([]T, n)
	copy(out, s[len(s)-n:])
	return out
}
