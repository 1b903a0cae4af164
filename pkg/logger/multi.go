package logger

import "errors"

// MultiLogger copies every message to each of its backends in order. The
// CLI uses it to add a --log-file JSON sink next to stderr.
type MultiLogger struct {
	backends []Logger
}

// NewMultiLogger creates a logger over the non-nil backends.
func NewMultiLogger(backends ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Info(format, args...)
	}
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Warning(format, args...)
	}
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Error(format, args...)
	}
}

// Close closes every backend and joins their errors.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Logger = (*MultiLogger)(nil)
