package ride

import "strings"

// Type records whether any active booking exists on the ride. It is derived
// state: the first accepted booking moves PUBLISHED -> BOOKED, and the last
// passenger cancellation moves it back. It does not track whether the trip
// has started.
type Type string

const (
	TypePublished Type = "PUBLISHED"
	TypeBooked    Type = "BOOKED"
)

// ParseType normalizes and validates a ride type string.
func ParseType(in string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(in)))
	return t, t.Valid()
}

// Valid reports whether t is one of the allowed ride type constants.
func (t Type) Valid() bool {
	return t == TypePublished || t == TypeBooked
}

// String returns the string representation of the Type.
func (t Type) String() string {
	return string(t)
}
