// Package errors defines the error types shared by the poolwatch packages.
// Sentinel errors identify the kind of failure; the typed wrappers carry the
// context needed to log or report it.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for window configuration
var (
	// ErrConfig is the root of every configuration error
	ErrConfig = errors.New("config: invalid configuration")

	// ErrUnrecognizedSuffix indicates a period token without a s|m|h|d suffix
	ErrUnrecognizedSuffix = errors.New("config: unrecognized period suffix")

	// ErrInvalidPeriod indicates a period token whose count is missing, zero or negative
	ErrInvalidPeriod = errors.New("config: invalid period")
)

// Sentinel errors for lock operations
var (
	// ErrIllegalLockState indicates Release was called on an unlocked lock
	ErrIllegalLockState = errors.New("lock: release of unlocked lock")

	// ErrInterrupted indicates a lock wait was abandoned before it was granted.
	// The operation may be retried.
	ErrInterrupted = errors.New("lock: wait interrupted")
)

// Sentinel errors for the administration layer
var (
	// ErrPoolNotRegistered indicates no pool is registered under the alias
	ErrPoolNotRegistered = errors.New("admin: pool not registered")

	// ErrPoolAlreadyRegistered indicates the alias is already in use
	ErrPoolAlreadyRegistered = errors.New("admin: pool already registered")

	// ErrAdminClosed indicates the admin has been closed
	ErrAdminClosed = errors.New("admin: closed")
)

// ConfigReason names the rule a period token broke.
type ConfigReason string

// Reasons reported by ConfigError.
const (
	ReasonUnrecognizedSuffix ConfigReason = "UnrecognizedSuffix"
	ReasonInvalidPeriod      ConfigReason = "InvalidPeriod"
)

// ConfigError reports a period token that cannot be turned into a window.
type ConfigError struct {
	Token  string       // Token as supplied by the caller
	Reason ConfigReason // Rule that was broken
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: token %q: %s", e.Token, e.Reason)
}

// Unwrap returns the sentinel matching the reason.
func (e *ConfigError) Unwrap() error {
	switch e.Reason {
	case ReasonUnrecognizedSuffix:
		return ErrUnrecognizedSuffix
	case ReasonInvalidPeriod:
		return ErrInvalidPeriod
	default:
		return ErrConfig
	}
}

// Is lets every ConfigError match ErrConfig as well as its own reason.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(token string, reason ConfigReason) *ConfigError {
	return &ConfigError{Token: token, Reason: reason}
}

// LockStateError reports a lock used against its contract.
type LockStateError struct {
	Op           string // Operation that failed
	HeldReaders  int    // Lock state observed when the violation happened
	WaitingWrite int
}

func (e *LockStateError) Error() string {
	return fmt.Sprintf("%s: %v (held=%d pending_writers=%d)", e.Op, ErrIllegalLockState, e.HeldReaders, e.WaitingWrite)
}

func (e *LockStateError) Unwrap() error {
	return ErrIllegalLockState
}

// InterruptedError reports an abandoned lock wait. Cause is the context error.
type InterruptedError struct {
	Op    string
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrInterrupted, e.Cause)
}

// Unwrap exposes both ErrInterrupted and the context error.
func (e *InterruptedError) Unwrap() []error {
	return []error{ErrInterrupted, e.Cause}
}

// Temporary reports that the operation can be retried.
func (e *InterruptedError) Temporary() bool {
	return true
}

// NewInterruptedError creates a new InterruptedError
func NewInterruptedError(op string, cause error) *InterruptedError {
	return &InterruptedError{Op: op, Cause: cause}
}

// ListenerError wraps a failure raised by a listener callback.
type ListenerError struct {
	Round string // Notification round, e.g. "statistics"
	Index int    // Position of the listener in the registry
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %s[%d]: %v", e.Round, e.Index, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// PanicError turns a recovered panic value into an error.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsRetryable reports whether err marks an operation that may be retried.
func IsRetryable(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
