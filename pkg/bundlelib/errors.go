package bundlelib

import (
	"errors"
	"fmt"
)

var (
	ErrManifestNotLoaded = errors.New("bundle manifest is not loaded; wait for the manager to finish initializing")
	ErrNotServerMode     = errors.New("operation is only available in server mode")
	ErrInvalidBundle     = errors.New("not a valid bundle")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrBundleNotFound    = errors.New("bundle not found")
	ErrManagerClosed     = errors.New("bundle manager is closed")

	ErrMalformedVersionRecord = errors.New("malformed version record")
	ErrUnsupportedScheme      = errors.New("unsupported transport scheme")
	ErrInsufficientDiskSpace  = errors.New("insufficient disk space")
	ErrInvalidConfig          = errors.New("invalid configuration")
)

const (
	opDownload = "download"
	opLoad     = "load"
	opParse    = "parse"
)

// BundleError describes a failure to obtain or open a single bundle. It is the
// error recorded in the registry and surfaced to operations waiting on the
// bundle or any bundle depending on it.
type BundleError struct {
	// Op is one of "download", "load" or "parse".
	Op string
	// Name is the concrete bundle name.
	Name string
	// URL is the address or path the bundle was read from.
	URL string
	// Cause is the underlying error.
	Cause error
}

func (e *BundleError) Error() string {
	switch e.Op {
	case opParse:
		return fmt.Sprintf("%s is not a valid bundle: %v", e.Name, e.Cause)
	case opLoad:
		return fmt.Sprintf("Failed loading bundle %s from %s: %v", e.Name, e.URL, e.Cause)
	default:
		return fmt.Sprintf("Failed downloading bundle %s from %s: %v", e.Name, e.URL, e.Cause)
	}
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *BundleError) Unwrap() error {
	return e.Cause
}

// TransportError is a structured error from a transport retriever.
// Transient errors may succeed on a later attempt.
type TransportError struct {
	// Protocol identifies the retriever (e.g., "http", "ftp", "sftp", "file").
	Protocol string
	// Op is the operation that failed (e.g., "connect", "retrieve").
	Op string
	// Cause is the underlying error.
	Cause error
	// transient indicates whether the error may be retried.
	transient bool
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s", e.Protocol, e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("%s %s", e.Protocol, e.Op)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if this error is transient and may be retried.
func (e *TransportError) IsTransient() bool {
	return e.transient
}

// NewTransientError creates a TransportError that may be retried.
func NewTransientError(protocol, op string, cause error) *TransportError {
	return &TransportError{
		Protocol:  protocol,
		Op:        op,
		Cause:     cause,
		transient: true,
	}
}

// NewPermanentError creates a TransportError that should not be retried.
func NewPermanentError(protocol, op string, cause error) *TransportError {
	return &TransportError{
		Protocol:  protocol,
		Op:        op,
		Cause:     cause,
		transient: false,
	}
}

// IsTransient reports whether err wraps a transient TransportError.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.IsTransient()
	}
	return false
}

func asBundleError(err error, target **BundleError) bool {
	return errors.As(err, target)
}
