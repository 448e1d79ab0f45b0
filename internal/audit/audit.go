// Package audit provides append-only structured logging for entry access.
//
// Every access attempt (read, write, delete) is recorded with its outcome to
// an audit log, by default at ~/.securestore/audit.jsonl, as newline-delimited
// JSON. Recording never fails the operation being audited: write errors are
// kept and reported through Health.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benaskins/securestore/internal/logbuf"
	"github.com/google/uuid"
)

// Operation is the kind of access attempted.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Record is a single audit log entry. Records are never rewritten.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	EntryID   string    `json:"entry"`
	Operation Operation `json:"op"`
	Outcome   Outcome   `json:"outcome"`
	Actor     string    `json:"actor,omitempty"` // "cli", "api", ...
	Error     string    `json:"error,omitempty"`
}

// DefaultRecent is how many records a Logger keeps in memory.
const DefaultRecent = 256

// Logger appends records to a writer, usually an 0600 file.
type Logger struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	path     string
	recent   *logbuf.Ring[Record]
	lastErr  error
	failures int
	logger   *slog.Logger
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	l := New(f)
	l.closer = f
	l.path = path
	return l, nil
}

// New creates a logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{
		w:      w,
		recent: logbuf.New[Record](DefaultRecent),
		logger: slog.With("component", "audit"),
	}
}

// Record appends r, filling in ID and Timestamp when empty. It never returns
// an error; failures surface through Health.
func (l *Logger) Record(r Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(r)

	l.mu.Lock()
	l.recent.Push(r)
	if err == nil {
		_, err = l.w.Write(append(data, '\n'))
	}
	if err != nil {
		err = fmt.Errorf("writing audit record: %w", err)
		l.lastErr = err
		l.failures++
	} else {
		l.lastErr = nil
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("audit write failed", "path", l.path, "error", err)
	}
}

// Health returns the error from the most recent write, or nil if it
// succeeded. The error counts every record lost so far.
func (l *Logger) Health() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastErr == nil {
		return nil
	}
	return fmt.Errorf("%w (%d records not written)", l.lastErr, l.failures)
}

// Recent returns up to n of the most recently recorded entries, oldest first,
// including ones that failed to reach the file. The order matches the file.
func (l *Logger) Recent(n int) []Record {
	return l.recent.Last(n)
}

// Path returns the log file path, or "" for writer-backed loggers.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.closer.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
