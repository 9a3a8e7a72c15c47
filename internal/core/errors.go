package core

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNotFound means the named entity is not in the library; terminal for the request
	KindNotFound
	// KindTransient covers transport, connection and timeout failures; retried
	KindTransient
	// KindValidation means the input was malformed; never retried
	KindValidation
	// KindBoundary means navigation ran past either end of the queue; a reported no-op
	KindBoundary
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindBoundary:
		return "boundary"
	default:
		return "unknown"
	}
}

var (
	ErrNoQueue         = errors.New("no active queue")
	ErrFilteredOut     = errors.New("every match is rated one star")
	ErrSizeUnavailable = errors.New("playlist size unavailable")
	ErrStartOfQueue    = errors.New("already at the start of the queue")
	ErrEndOfQueue      = errors.New("already at the end of the queue")
)

// Error tags an error with the kind callers branch on.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Tagged errors report their own kind; untagged transport failures
// are classified as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind != KindUnknown {
		return tagged.Kind
	}

	switch {
	case errors.Is(err, ErrNoQueue):
		return KindNotFound
	case errors.Is(err, ErrStartOfQueue), errors.Is(err, ErrEndOfQueue):
		return KindBoundary
	case isTransportFailure(err):
		return KindTransient
	}
	return KindUnknown
}

func IsTransient(err error) bool  { return KindOf(err) == KindTransient }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsBoundary(err error) bool   { return KindOf(err) == KindBoundary }

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	var alertErr tls.AlertError
	return errors.As(err, &alertErr)
}
