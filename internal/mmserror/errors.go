package mmserror

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes that carry no extra data.
var (
	// ErrNoConfig means no protocol config exists for the subscription.
	// Terminal, never retried and never consumes a retry attempt.
	ErrNoConfig = errors.New("no protocol config for subscription")

	// ErrAcquireTimeout means the data network did not become available
	// within the acquisition timeout. Retryable.
	ErrAcquireTimeout = errors.New("network acquisition timed out")

	// ErrNetworkLost means the leased network was torn down while a
	// transfer was using it. Classified as an I/O failure (retryable).
	ErrNetworkLost = errors.New("leased network lost")

	// ErrThrottled means the per-subscription send throttle rejected the
	// attempt. Retryable.
	ErrThrottled = errors.New("request throttled")
)

// ProtocolError reports a non-2xx HTTP status from the MMSC.
type ProtocolError struct {
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MMSC returned status %d", e.StatusCode)
}

// MalformedRequestError reports a request that cannot be prepared for the
// wire, e.g. an empty send payload. Terminal.
type MalformedRequestError struct {
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return "malformed request: " + e.Reason
}

// IOError wraps a connect/read/write failure against the MMSC. Retryable.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("I/O failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RetryPolicy decides which HTTP statuses are worth another attempt. The
// original always retried on any non-2xx; treating 4xx as permanent is
// opt-in per deployment.
type RetryPolicy struct {
	Permanent4xx bool
}

// Retryable reports whether err is a transient failure under the policy.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAcquireTimeout) || errors.Is(err, ErrNetworkLost) || errors.Is(err, ErrThrottled) {
		return true
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return true
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		if p.Permanent4xx && protoErr.StatusCode >= 400 && protoErr.StatusCode < 500 {
			return false
		}
		return true
	}
	return false
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.StatusCode
	}
	return 0
}
