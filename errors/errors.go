// Package errors provides error handling for cronnotify.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marking errors with a sentinel while keeping their message
//
// On top of that it defines the failure taxonomy the scheduler acts on:
//
//	ErrConfiguration        fatal at setup, never retried
//	ErrTransportUnavailable bus/service unreachable, recovered locally
//	ErrStorage              record file I/O failure (not-found excluded), fatal
//	ErrCommandLaunch        a command could not be started
//	ErrInvariantViolation   a state-machine precondition did not hold
//
// Usage:
//
//	if err := store.Set(id, now); err != nil {
//	    return errors.Wrap(err, "failed to update last execution")
//	}
//
//	if errors.IsStorageError(err) {
//	    // fatal
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf    = crdb.AssertionFailedf
	IsAssertionFailure  = crdb.IsAssertionFailure
	HasAssertionFailure = crdb.HasAssertionFailure
)

// Sentinel errors. Wrap or Mark these to add context while preserving the kind.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConfiguration indicates an invalid option (cron expression, identity, ...)
	ErrConfiguration = New("invalid configuration")

	// ErrInvalidSchedule indicates a cron expression that cannot produce a future time
	ErrInvalidSchedule = Mark(New("invalid schedule expression"), ErrConfiguration)

	// ErrTransportUnavailable indicates the message bus or a bus service is unreachable
	ErrTransportUnavailable = New("transport unavailable")

	// ErrStorage indicates an I/O failure on the execution record
	ErrStorage = New("storage error")

	// ErrCommandLaunch indicates a command could not be started
	ErrCommandLaunch = New("command launch failed")

	// ErrInvariantViolation indicates a broken state-machine precondition
	ErrInvariantViolation = New("invariant violation")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsTransportUnavailable checks if an error is or wraps ErrTransportUnavailable
func IsTransportUnavailable(err error) bool {
	return err != nil && Is(err, ErrTransportUnavailable)
}

// IsStorageError checks if an error is or wraps ErrStorage
func IsStorageError(err error) bool {
	return err != nil && Is(err, ErrStorage)
}

// IsInvariantViolation checks if an error is or wraps ErrInvariantViolation
func IsInvariantViolation(err error) bool {
	return err != nil && Is(err, ErrInvariantViolation)
}

// NewConfigurationError creates a configuration error with a formatted message
func NewConfigurationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// NewInvariantViolation creates an assertion failure marked as ErrInvariantViolation.
// The mark is outermost, so test for the assertion with HasAssertionFailure.
func NewInvariantViolation(format string, args ...interface{}) error {
	return Mark(AssertionFailedf(format, args...), ErrInvariantViolation)
}

// WrapTransport marks err as a transport failure with context
func WrapTransport(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrTransportUnavailable)
}

// WrapStorage marks err as a storage failure with context
func WrapStorage(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrStorage)
}

// WrapLaunch marks err as a command launch failure with context
func WrapLaunch(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrCommandLaunch)
}
