package booking

import (
	"errors"
	"strings"
	"time"
)

// Booking is one passenger's reservation of one or more seats on a ride.
// DriverID is denormalized from the ride for query convenience and must
// always agree with it.
type Booking struct {
	ID        string
	CreatedAt time.Time

	RideID      string
	PassengerID string
	DriverID    string

	// PassengerCount is the number of seats held; defaults to 1.
	PassengerCount int

	// Display strings for where the passenger gets on and off.
	Source      string
	Destination string

	Status        Status
	PaymentStatus PaymentStatus

	// PaymentAmount is fixed at creation time and never recomputed, even if
	// the ride's pricing changes later.
	PaymentAmount float64

	SpecialRequests string
}

var (
	ErrRideRequired      = errors.New("ride id is required")
	ErrPassengerRequired = errors.New("passenger id is required")
	ErrDriverRequired    = errors.New("driver id is required")
	ErrSeatsOutOfRange   = errors.New("passenger count must be at least 1")
	ErrNotActive         = errors.New("booking is not active")
)

// New creates an ONGOING booking with payment pending.
func New(rideID, passengerID, driverID string, seats int, source, destination, specialRequests string, amount float64) (*Booking, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrRideRequired
	}
	if strings.TrimSpace(passengerID) == "" {
		return nil, ErrPassengerRequired
	}
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrDriverRequired
	}
	if seats == 0 {
		seats = 1
	}
	if seats < 1 {
		return nil, ErrSeatsOutOfRange
	}

	return &Booking{
		CreatedAt:       time.Now().UTC(),
		RideID:          rideID,
		PassengerID:     passengerID,
		DriverID:        driverID,
		PassengerCount:  seats,
		Source:          source,
		Destination:     destination,
		Status:          StatusOngoing,
		PaymentStatus:   PaymentPending,
		PaymentAmount:   amount,
		SpecialRequests: specialRequests,
	}, nil
}

// Seats returns the seat count held by the booking, defaulting to 1 when the
// stored value is unset.
func (b *Booking) Seats() int {
	if b.PassengerCount < 1 {
		return 1
	}
	return b.PassengerCount
}

// Active reports whether the booking still holds seats on its ride.
func (b *Booking) Active() bool {
	return b.Status.Active()
}

// Complete marks the booking and its payment as completed. Called when the
// driver completes the ride.
func (b *Booking) Complete() error {
	if !b.Active() {
		return ErrNotActive
	}
	b.Status = StatusCompleted
	b.PaymentStatus = PaymentCompleted
	return nil
}

// Cancel releases the booking's seats and refunds its payment.
func (b *Booking) Cancel() error {
	if !b.Active() {
		return ErrNotActive
	}
	b.Status = StatusCancelled
	b.PaymentStatus = PaymentRefunded
	return nil
}
