// Package fault defines the caller-facing error taxonomy for the booking and
// lifecycle engine. Every rejected request maps to one of these codes so
// transport adapters can translate errors without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyBooked          = "ALREADY_BOOKED"
	CodeInsufficientCapacity   = "INSUFFICIENT_CAPACITY"
	CodePastRide               = "PAST_RIDE"
	CodeTerminalRide           = "TERMINAL_RIDE"
	CodeCapacityExceedsVehicle = "CAPACITY_EXCEEDS_VEHICLE"
	CodeRoleMismatch           = "ROLE_MISMATCH"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInternal               = "INTERNAL_ERROR"
)

// Error is an application error with a stable code and a human message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so sentinel comparisons work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsCode reports whether err carries the given fault code.
func IsCode(err error, code string) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

// Constructors.

// NotFound signals that an entity of the named kind does not exist.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", entity)}
}

// AlreadyBooked signals a second active booking by the same passenger.
func AlreadyBooked() *Error {
	return &Error{Code: CodeAlreadyBooked, Message: "you already have an active booking on this ride"}
}

// InsufficientCapacity reports the live remaining seat count so the caller
// can retry with a corrected request without another round trip.
func InsufficientCapacity(remaining int) *Error {
	return &Error{
		Code:    CodeInsufficientCapacity,
		Message: fmt.Sprintf("not enough seats available: %d remaining", remaining),
	}
}

// PastRide rejects operations on rides whose departure time has passed.
func PastRide() *Error {
	return &Error{Code: CodePastRide, Message: "ride departure time is in the past"}
}

// TerminalRide rejects transitions out of Completed or Cancelled.
func TerminalRide(status string) *Error {
	return &Error{
		Code:    CodeTerminalRide,
		Message: fmt.Sprintf("ride is already %s and accepts no further changes", status),
	}
}

// CapacityExceedsVehicle rejects publishing more seats than the vehicle has.
func CapacityExceedsVehicle(requested, vehicle int) *Error {
	return &Error{
		Code:    CodeCapacityExceedsVehicle,
		Message: fmt.Sprintf("requested capacity %d exceeds vehicle capacity %d", requested, vehicle),
	}
}

// RoleMismatch rejects callers whose asserted or actual role does not permit
// the operation.
func RoleMismatch(msg string) *Error {
	if msg == "" {
		msg = "caller role does not permit this operation"
	}
	return &Error{Code: CodeRoleMismatch, Message: msg}
}

// Invalid flags malformed or policy-violating input.
func Invalid(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Internal wraps a store or infrastructure failure. Safe to retry: nothing
// partial is ever committed.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}
