package breaks

import (
	"errors"
	"fmt"
)

// Domain failures. Each is reported to the requester and consumes the
// queued request; none is retried.
var (
	ErrUnknownCode       = errors.New("unknown break code")
	ErrAlreadyActive     = errors.New("break already active")
	ErrDailyLimitReached = errors.New("daily limit reached")
	ErrNoActiveBreak     = errors.New("no active break")
)

// Category groups errors by how the system reacts to them.
type Category int

const (
	// None is the category of a nil error.
	None Category = iota
	// Validation errors are malformed requests, rejected before queueing.
	Validation
	// Conflict errors are business-rule violations reported to the user.
	Conflict
	// Transient errors are store or runtime faults.
	Transient
)

// String returns the category name used in logs and JSON output.
func (c Category) String() string {
	switch c {
	case None:
		return "none"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Classify maps an error to its category. Unrecognized errors are Transient.
// Uses errors.Is to handle wrapped errors.
func Classify(err error) Category {
	switch {
	case err == nil:
		return None
	case errors.Is(err, ErrUnknownCode):
		return Validation
	case errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrDailyLimitReached),
		errors.Is(err, ErrNoActiveBreak):
		return Conflict
	}
	return Transient
}

// Rejection is a domain failure with the details needed to explain it.
//
// Rejection unwraps to one of the Err* sentinels, so callers match it with
// errors.Is and read details with errors.As.
type Rejection struct {
	Reason error
	User   string

	// Code is the requested code, or the active code for ErrAlreadyActive.
	Code string

	// Used and Limit are set for ErrDailyLimitReached.
	Used  int
	Limit int
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	switch {
	case errors.Is(r.Reason, ErrDailyLimitReached):
		return fmt.Sprintf("%s: %s %s (%d/%d)", r.Reason, r.User, r.Code, r.Used, r.Limit)
	case r.Code != "":
		return fmt.Sprintf("%s: %s %s", r.Reason, r.User, r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.User)
}

// Unwrap returns the sentinel reason.
func (r *Rejection) Unwrap() error { return r.Reason }

// IsRejection reports whether err is a domain rejection rather than a fault.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
