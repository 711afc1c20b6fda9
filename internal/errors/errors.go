// Package errors defines the error kinds the core distinguishes (§7 Error
// Handling Design): NotFound, NotReady, Timeout, Corruption, AuthDenied, and
// Fatal. Each is a distinct type so callers can classify and react correctly
// — tracks are the unit of local recovery, a stream is the unit of restart,
// a connection is the unit of disposal.
package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// coreMarker is implemented by every core error type so callers can tell a
// core-classified error apart from an arbitrary wrapped error.
type coreMarker interface {
	error
	isCoreError()
}

// NotFoundError indicates a stream, input, or page could not be located
// (resolver / shared-memory map lookups).
type NotFoundError struct {
	Op  string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("not found: %s", e.Op)
	}
	return fmt.Sprintf("not found: %s: %v", e.Op, e.Err)
}
func (e *NotFoundError) Unwrap() error { return e.Err }
func (e *NotFoundError) isCoreError()  {}

// NotReadyError indicates a stream is in BOOT/INIT and the caller should
// retry with a bounded loop rather than treat this as failure.
type NotReadyError struct {
	Op    string
	State string
	Err   error
}

func (e *NotReadyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("not ready: %s (state=%s)", e.Op, e.State)
	}
	return fmt.Sprintf("not ready: %s (state=%s): %v", e.Op, e.State, e.Err)
}
func (e *NotReadyError) Unwrap() error { return e.Err }
func (e *NotReadyError) isCoreError()  {}

// TimeoutError indicates an operation exceeded a deadline or idle timeout
// (boot handshake, page load, heartbeat). Sustained timeouts escalate to Fatal.
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) isCoreError()  {}

// CorruptionError indicates a bad key index or an unexpected sentinel where
// data was expected. Per policy, this drops only the affected track.
type CorruptionError struct {
	Op      string
	TrackID uint32
	Err     error
}

func (e *CorruptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("corruption: %s (track=%d)", e.Op, e.TrackID)
	}
	return fmt.Sprintf("corruption: %s (track=%d): %v", e.Op, e.TrackID, e.Err)
}
func (e *CorruptionError) Unwrap() error { return e.Err }
func (e *CorruptionError) isCoreError()  {}

// AuthDeniedError indicates a push source was not whitelisted; the caller
// must close the connection.
type AuthDeniedError struct {
	Op  string
	Err error
}

func (e *AuthDeniedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth denied: %s", e.Op)
	}
	return fmt.Sprintf("auth denied: %s: %v", e.Op, e.Err)
}
func (e *AuthDeniedError) Unwrap() error { return e.Err }
func (e *AuthDeniedError) isCoreError()  {}

// FatalError indicates a required page could not be mapped or an exec
// failed; the current process must terminate and the supervisor may restart it.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fatal: %s", e.Op)
	}
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}
func (e *FatalError) Unwrap() error { return e.Err }
func (e *FatalError) isCoreError()  {}

// IsTimeout returns true if err is (or wraps) a TimeoutError, a context
// deadline exceeded, or any error type that exposes Timeout() bool == true.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toErr interface{ Timeout() bool }
	if stdErrors.As(err, &toErr) && toErr.Timeout() {
		return true
	}
	return false
}

// IsNotFound returns true if err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return err != nil && stdErrors.As(err, &e)
}

// IsNotReady returns true if err is (or wraps) a NotReadyError.
func IsNotReady(err error) bool {
	var e *NotReadyError
	return err != nil && stdErrors.As(err, &e)
}

// IsCorruption returns true if err is (or wraps) a CorruptionError.
func IsCorruption(err error) bool {
	var e *CorruptionError
	return err != nil && stdErrors.As(err, &e)
}

// IsAuthDenied returns true if err is (or wraps) an AuthDeniedError.
func IsAuthDenied(err error) bool {
	var e *AuthDeniedError
	return err != nil && stdErrors.As(err, &e)
}

// IsFatal returns true if err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var e *FatalError
	return err != nil && stdErrors.As(err, &e)
}

// IsCoreError returns true if the error chain contains any of the core's
// classified error kinds.
func IsCoreError(err error) bool {
	if err == nil {
		return false
	}
	var cm coreMarker
	return stdErrors.As(err, &cm)
}

// Constructors (encourage contextual wrapping with %w when used by callers).
func NewNotFound(op string, cause error) error { return &NotFoundError{Op: op, Err: cause} }
func NewNotReady(op, state string, cause error) error {
	return &NotReadyError{Op: op, State: state, Err: cause}
}
func NewTimeout(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}
func NewCorruption(op string, trackID uint32, cause error) error {
	return &CorruptionError{Op: op, TrackID: trackID, Err: cause}
}
func NewAuthDenied(op string, cause error) error { return &AuthDeniedError{Op: op, Err: cause} }
func NewFatal(op string, cause error) error      { return &FatalError{Op: op, Err: cause} }
