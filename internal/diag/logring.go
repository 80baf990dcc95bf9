package diag

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RingLogger keeps the most recent log lines in memory for the diagnostics
// endpoint while forwarding everything to the underlying loggers.
type RingLogger struct {
	infoLog  *log.Logger
	errorLog *log.Logger

	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRingLogger constructs a ring logger holding up to capacity lines.
func NewRingLogger(infoLog, errorLog *log.Logger, capacity int) *RingLogger {
	if capacity <= 0 {
		capacity = 200
	}
	return &RingLogger{
		infoLog:  infoLog,
		errorLog: errorLog,
		entries:  make([]Entry, capacity),
	}
}

// Infof logs an informational line.
func (r *RingLogger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.infoLog != nil {
		r.infoLog.Print(msg)
	}
	r.record("INFO", msg)
}

// Errorf logs an error line.
func (r *RingLogger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.errorLog != nil {
		r.errorLog.Print(msg)
	}
	r.record("ERROR", msg)
}

func (r *RingLogger) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = Entry{Time: time.Now(), Level: level, Message: msg}
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Recent returns the captured lines, oldest first.
func (r *RingLogger) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
