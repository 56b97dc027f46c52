package booking

import "strings"

// Status is a booking status as stored in the `bookings` table.
type Status string

const (
	StatusOngoing   Status = "ONGOING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus normalizes and validates a booking status string.
func ParseStatus(in string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(in)))
	return s, s.Valid()
}

// Valid reports whether s is one of the allowed booking status constants.
func (s Status) Valid() bool {
	switch s {
	case StatusOngoing, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// Active reports whether the booking still holds seats. Only cancellation
// releases capacity.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// PaymentStatus tracks the payment side of a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Valid reports whether p is one of the allowed payment status constants.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentCompleted, PaymentRefunded:
		return true
	default:
		return false
	}
}

// String returns the string representation of the PaymentStatus.
func (p PaymentStatus) String() string {
	return string(p)
}
