package marketplace

import (
	"time"

	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/ride"
)

// Routing keys on the marketplace topic exchange.
const (
	routeRidePublished = "ride.published"
	routeRideStarted   = "ride.started"
	routeRideCompleted = "ride.completed"
	routeRideCancelled = "ride.cancelled"

	routeBookingCreated   = "booking.created"
	routeBookingCancelled = "booking.cancelled"
)

// RideEvent is the payload for ride.* lifecycle events.
type RideEvent struct {
	RideID      string    `json:"ride_id"`
	DriverID    string    `json:"driver_id"`
	Status      string    `json:"status"`
	Type        string    `json:"type"`
	DepartureAt time.Time `json:"departure_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// BookingEvent is the payload for booking.* lifecycle events.
type BookingEvent struct {
	BookingID   string  `json:"booking_id"`
	RideID      string  `json:"ride_id"`
	PassengerID string  `json:"passenger_id"`
	DriverID    string  `json:"driver_id"`
	Seats       int     `json:"seats"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Notification is the push payload sent to a connected user over the
// realtime channel.
type Notification struct {
	Kind      string `json:"kind"`
	RideID    string `json:"ride_id"`
	BookingID string `json:"booking_id,omitempty"`
	Message   string `json:"message"`
}

func newRideEvent(r *ride.Ride) RideEvent {
	return RideEvent{
		RideID:      r.ID,
		DriverID:    r.DriverID,
		Status:      r.Status.String(),
		Type:        r.Type.String(),
		DepartureAt: r.DepartureAt,
		OccurredAt:  time.Now().UTC(),
	}
}

func newBookingEvent(b *booking.Booking) BookingEvent {
	return BookingEvent{
		BookingID:   b.ID,
		RideID:      b.RideID,
		PassengerID: b.PassengerID,
		DriverID:    b.DriverID,
		Seats:       b.Seats(),
		Amount:      b.PaymentAmount,
		Status:      b.Status.String(),
		OccurredAt:  time.Now().UTC(),
	}
}
