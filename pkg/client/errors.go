package client

import (
	"context"
	"errors"
	"fmt"
)

// TransportError is a network or HTTP-level failure. Status is zero when the
// request never reached the server.
type TransportError struct {
	Status int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsTransport checks if an error is a TransportError and returns it.
func AsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// MalformedError means the server replied 2xx but the body did not have the
// expected shape. Distinct from TransportError so callers can tell "server
// unreachable" apart from "server misbehaved".
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("unexpected response shape: %v", e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// AsMalformed checks if an error is a MalformedError and returns it.
func AsMalformed(err error) (*MalformedError, bool) {
	var me *MalformedError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// LockRejectedError means the server refused a lock acquire or release.
// The caller must not assume the lock state changed.
type LockRejectedError struct {
	Status int
	Reason string
}

func (e *LockRejectedError) Error() string {
	return fmt.Sprintf("lock request rejected (%d): %s", e.Status, e.Reason)
}

// AsLockRejected checks if an error is a LockRejectedError and returns it.
func AsLockRejected(err error) (*LockRejectedError, bool) {
	var le *LockRejectedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsCancelled reports whether an operation ended because its context was
// cancelled. Cancellation is a terminal, non-error outcome: callers should
// suppress error UI for it.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
