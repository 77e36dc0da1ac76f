package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Sentinel errors shared across the archiver.
var (
	// ErrNotFound is returned by stores when a digest or item is unknown.
	ErrNotFound = errors.New("not found")
	// ErrHashMismatch signals that stored bytes no longer hash to their digest.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrDepthExceeded marks references dropped by the depth bound. It is a soft stop.
	ErrDepthExceeded = errors.New("depth exceeded")
	// ErrItemLimitExceeded marks the crawl stopping at max_items. It is a soft stop.
	ErrItemLimitExceeded = errors.New("item limit exceeded")
)

// NetworkError reports a failed fetch. Transient errors are retried by the fetcher.
type NetworkError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *NetworkError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s network error fetching %s: status %d: %v", class, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s network error fetching %s: %v", class, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the session was rejected. It aborts the whole crawl.
type AuthError struct {
	URL        string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session rejected fetching %s: status %d", e.URL, e.StatusCode)
}

// ParseError reports payload bytes that could not be turned into a document.
type ParseError struct {
	Item ItemID
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Item, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError wraps a storage layer failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Transient
	}
	return false
}

// IsStorage reports whether err is a failure of the storage layer rather than
// of the remote resource.
func IsStorage(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) || errors.Is(err, ErrHashMismatch)
}

// ClassifyStatus maps an HTTP response to the error taxonomy. It returns nil for
// success codes.
func ClassifyStatus(url string, code int, cause error) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{URL: url, StatusCode: code}
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code >= 500:
		return &NetworkError{URL: url, StatusCode: code, Transient: true, Err: statusCause(code, cause)}
	case code == 0:
		return classifyTransport(url, cause)
	default:
		return &NetworkError{URL: url, StatusCode: code, Transient: false, Err: statusCause(code, cause)}
	}
}

func statusCause(code int, cause error) error {
	if cause != nil {
		return cause
	}
	return errors.New(http.StatusText(code))
}

// classifyTransport treats timeouts and connection level failures as transient.
func classifyTransport(url string, cause error) error {
	if cause == nil {
		cause = errors.New("empty response")
	}
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return &NetworkError{URL: url, Transient: transientTransport(cause), Err: cause}
}

func transientTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
