package booking

// SeatsHeld sums the seat counts of all active (non-cancelled) bookings.
func SeatsHeld(bookings []*Booking) int {
	held := 0
	for _, b := range bookings {
		if b.Active() {
			held += b.Seats()
		}
	}
	return held
}

// Remaining computes a ride's remaining seat capacity from its booking set.
// The value is always derived from the current bookings, never stored on the
// ride, so stored capacity and actual reservations cannot drift. A ride with
// remaining <= 0 is excluded from discovery listings.
func Remaining(seatCapacity int, bookings []*Booking) int {
	return seatCapacity - SeatsHeld(bookings)
}

// ActiveFor returns the passenger's active booking on the set, or nil. At
// most one active booking per (ride, passenger) pair is an invariant
// enforced by the booking transaction.
func ActiveFor(bookings []*Booking, passengerID string) *Booking {
	for _, b := range bookings {
		if b.PassengerID == passengerID && b.Active() {
			return b
		}
	}
	return nil
}
