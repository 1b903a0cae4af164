// Package logger is the leveled logging layer shared by the bundle manager,
// the origin server and the CLI. Backends print plain prefixed lines, zerolog
// JSON lines, or fan out to several of these.
package logger

import (
	"fmt"
	"log"
	"sync"
)

// Logger is the leveled, printf-style sink every warpbundle component
// writes to.
type Logger interface {
	// Info logs a progress message (e.g., "Loading bundle: hero").
	Info(format string, args ...interface{})

	// Warning logs a recoverable problem (e.g., "Ambiguous bundle variant chosen").
	Warning(format string, args ...interface{})

	// Error logs a failure (e.g., "Failed downloading bundle hero").
	Error(format string, args ...interface{})

	// Close releases the sink. Calling it again is a no-op.
	Close() error
}

// Level orders message severities.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(lv))
}

// StandardLogger prints "[LEVEL] message" lines through a *log.Logger.
type StandardLogger struct {
	out *log.Logger
}

// NewStandardLogger creates a logger printing through l.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{out: l}
}

func (s *StandardLogger) print(lv Level, format string, args []interface{}) {
	s.out.Printf("[%s] %s", lv, fmt.Sprintf(format, args...))
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.print(LevelInfo, format, args)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.print(LevelWarning, format, args)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.print(LevelError, format, args)
}

// Close does nothing; the *log.Logger output is owned by the caller.
func (s *StandardLogger) Close() error {
	return nil
}

// LevelFilter forwards messages at or above a minimum level.
type LevelFilter struct {
	next  Logger
	floor Level
}

// NewLevelFilter wraps next so that messages below floor are dropped.
func NewLevelFilter(next Logger, floor Level) *LevelFilter {
	return &LevelFilter{next: next, floor: floor}
}

func (f *LevelFilter) Info(format string, args ...interface{}) {
	if f.floor <= LevelInfo {
		f.next.Info(format, args...)
	}
}

func (f *LevelFilter) Warning(format string, args ...interface{}) {
	if f.floor <= LevelWarning {
		f.next.Warning(format, args...)
	}
}

func (f *LevelFilter) Error(format string, args ...interface{}) {
	f.next.Error(format, args...)
}

func (f *LevelFilter) Close() error {
	return f.next.Close()
}

// NopLogger discards everything.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Info(string, ...interface{})    {}
func (n *NopLogger) Warning(string, ...interface{}) {}
func (n *NopLogger) Error(string, ...interface{})   {}
func (n *NopLogger) Close() error                   { return nil }

// Entry is one message recorded by MockLogger.
type Entry struct {
	Level Level
	Msg   string
}

// MockLogger records messages for tests. Transfers log from their own
// goroutines, so it is safe for concurrent use.
type MockLogger struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(lv Level, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: lv, Msg: msg})
	m.mu.Unlock()
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(LevelInfo, format, args)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(LevelWarning, format, args)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(LevelError, format, args)
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of every recorded message in order.
func (m *MockLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *MockLogger) messages(lv Level) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if e.Level == lv {
			out = append(out, e.Msg)
		}
	}
	return out
}

// Infos returns the recorded info messages.
func (m *MockLogger) Infos() []string { return m.messages(LevelInfo) }

// Warnings returns the recorded warnings.
func (m *MockLogger) Warnings() []string { return m.messages(LevelWarning) }

// Errors returns the recorded errors.
func (m *MockLogger) Errors() []string { return m.messages(LevelError) }

// Closed reports whether Close was called.
func (m *MockLogger) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*LevelFilter)(nil)
	_ Logger = (*NopLogger)(nil)
	_ Logger = (*MockLogger)(nil)
)
