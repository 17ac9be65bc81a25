package engine

import (
	"errors"
	"fmt"
)

// FaultError represents an unexpected failure while applying one queue entry.
//
// Faults include:
//   - Store faults: a read or write of the break tables failed
//   - Panics: the state machine panicked on the entry
//   - Unknown actions: the entry carries an action the processor cannot apply
//   - Malformed entries: the queue row could not be decoded
//
// A faulted entry is still removed from the queue and its requester gets a
// generic failure notification. Faults are never retried.
type FaultError struct {
	// Code identifies the fault category.
	Code FaultCode

	// EntryID identifies the affected queue entry.
	EntryID string

	// User is the requester of the entry.
	User string

	// Err is the underlying cause.
	Err error
}

// FaultCode categorizes processor faults.
type FaultCode string

const (
	// ErrCodeStoreFault indicates a break table read or write failed.
	ErrCodeStoreFault FaultCode = "STORE_FAULT"

	// ErrCodePanic indicates the entry panicked during processing.
	ErrCodePanic FaultCode = "PANIC"

	// ErrCodeUnknownAction indicates the entry's action is not recognized.
	ErrCodeUnknownAction FaultCode = "UNKNOWN_ACTION"

	// ErrCodeMalformedEntry indicates the queue row could not be decoded.
	ErrCodeMalformedEntry FaultCode = "MALFORMED_ENTRY"
)

// Error implements the error interface.
func (e *FaultError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("%s: %v (entry=%s, user=%s)", e.Code, e.Err, e.EntryID, e.User)
	}
	return fmt.Sprintf("%s: %v (user=%s)", e.Code, e.Err, e.User)
}

// Unwrap returns the underlying cause.
func (e *FaultError) Unwrap() error { return e.Err }

// IsFault returns true if err is a processor fault.
// Uses errors.As to handle wrapped errors.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}

// IsPanic returns true if err is a recovered panic.
func IsPanic(err error) bool {
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodePanic
	}
	return false
}
