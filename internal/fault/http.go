package fault

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the HTTP status code the transport layer
// should answer with. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}

	switch fe.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyBooked, CodeInsufficientCapacity:
		return http.StatusConflict
	case CodePastRide, CodeTerminalRide, CodeCapacityExceedsVehicle, CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeRoleMismatch:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// FromError returns the *Error carried by err, or an internal wrapper when
// err is not part of the taxonomy.
func FromError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Internal(err)
}
