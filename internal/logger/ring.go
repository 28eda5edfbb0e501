package logger

import (
	"log/slog"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Entry Types
// ///////////////////////////////////////////////

// Level is the severity of a display log entry.
type Level string

const (
	Info    Level = "info"
	Warn    Level = "warn"
	Error   Level = "error"
	Success Level = "success"
)

// Slog maps a display level onto the file logger's levels.
func (l Level) Slog() slog.Level {
	switch l {
	case Warn:
		return LevelWarn
	case Error:
		return LevelError
	case Success:
		return LevelSuccess
	default:
		return LevelInfo
	}
}

// Entry is one line in the display log.
type Entry struct {
	// Timestamp is the wall-clock time of the entry in epoch milliseconds.
	Timestamp int64  `json:"timestamp"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
}

// NewEntry stamps a message with t.
func NewEntry(t time.Time, level Level, msg string) Entry {
	return Entry{Timestamp: t.UnixMilli(), Level: level, Message: msg}
}

// ///////////////////////////////////////////////
// Ring
// ///////////////////////////////////////////////

// Ring is a bounded append-only log. Once more than max entries are held the
// oldest are dropped from the front. Safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// NewRing creates a Ring holding at most n entries. An n below 1 is treated
// as 1.
func NewRing(n int) *Ring {
	return &Ring{max: max(n, 1)}
}

// Append adds e and evicts from the front until the ring fits.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.trim()
}

// SetMax changes the capacity, truncating immediately when the ring is over
// the new bound.
func (r *Ring) SetMax(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = max(n, 1)
	r.trim()
}

// Max returns the current capacity.
func (r *Ring) Max() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// Len returns the number of held entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a copy of the held entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// trim must be called with mu held.
func (r *Ring) trim() {
	if over := len(r.entries) - r.max; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(r.entries, r.entries[over:])
		clear(r.entries[n:])
		r.entries = r.entries[:n]
	}
}
