package ride

import (
	"errors"
	"strings"
	"time"

	"ridepool/internal/domain/geo"
)

// Ride is the domain entity corresponding to the `rides` table: a trip
// offered by a driver with a fixed seat capacity and a route.
//
// SeatCapacity is fixed at publish time and never mutated by bookings;
// remaining capacity is always derived from the booking set.
type Ride struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	DriverID  string
	VehicleID string

	// Route
	Route geo.Route

	// Schedule & capacity
	DepartureAt  time.Time
	SeatCapacity int

	// Pricing. Price is the flat fare per booking; when PricePerKM and
	// EstimatedDistanceKM are both known the fare is distance-based instead.
	Price               float64
	PricePerKM          *float64
	EstimatedDistanceKM *float64

	// Lifecycle state
	Status Status
	Type   Type
}

var (
	ErrDriverRequired     = errors.New("driver id is required")
	ErrVehicleRequired    = errors.New("vehicle id is required")
	ErrCapacityOutOfRange = errors.New("seat capacity must be at least 1")
	ErrNegativePrice      = errors.New("price must not be negative")
	ErrTerminalState      = errors.New("ride is in a terminal state")
	ErrInvalidTransition  = errors.New("invalid ride status transition")
	ErrNotBooked          = errors.New("ride has no active bookings")
	ErrDepartureZero      = errors.New("departure time is required")
)

// New creates a published ride in UPCOMING status with zero bookings. When
// the route's endpoints both carry coordinates the trip distance is estimated
// up front so distance-based fares stay fixed from publish time.
func New(driverID, vehicleID string, route geo.Route, departureAt time.Time, capacity int, price float64, pricePerKM *float64) (*Ride, error) {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}
	if vehicleID = strings.TrimSpace(vehicleID); vehicleID == "" {
		return nil, ErrVehicleRequired
	}
	if capacity < 1 {
		return nil, ErrCapacityOutOfRange
	}
	if price < 0 || (pricePerKM != nil && *pricePerKM < 0) {
		return nil, ErrNegativePrice
	}
	if departureAt.IsZero() {
		return nil, ErrDepartureZero
	}

	now := time.Now().UTC()
	r := &Ride{
		CreatedAt:    now,
		UpdatedAt:    now,
		DriverID:     driverID,
		VehicleID:    vehicleID,
		Route:        route,
		DepartureAt:  departureAt,
		SeatCapacity: capacity,
		Price:        price,
		PricePerKM:   pricePerKM,
		Status:       StatusUpcoming,
		Type:         TypePublished,
	}

	if d := geo.DistanceKM(route.Pickup, route.Destination); d >= 0 {
		r.EstimatedDistanceKM = &d
	}

	return r, nil
}

// FareAmount is the payment amount fixed at booking time: distance-based when
// both the per-km rate and the estimated distance are known, flat otherwise.
func (r *Ride) FareAmount() float64 {
	if r.PricePerKM != nil && r.EstimatedDistanceKM != nil {
		return *r.PricePerKM * *r.EstimatedDistanceKM
	}
	return r.Price
}

// MarkBooked records that the ride now holds at least one active booking.
// Status is unchanged; a booked ride is still upcoming.
func (r *Ride) MarkBooked() error {
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	r.Type = TypeBooked
	r.touch()
	return nil
}

// RevertToPublished returns the ride to the open marketplace after its last
// active booking was cancelled. A passenger's withdrawal never cancels the
// ride itself; it only frees capacity.
func (r *Ride) RevertToPublished() error {
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	r.Type = TypePublished
	r.Status = StatusUpcoming
	r.touch()
	return nil
}

// Start moves UPCOMING -> IN_PROGRESS.
func (r *Ride) Start() error {
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	if !r.Status.CanTransitionTo(StatusInProgress) {
		return ErrInvalidTransition
	}
	r.Status = StatusInProgress
	r.touch()
	return nil
}

// Complete moves the ride to COMPLETED. Allowed from UPCOMING as well as
// IN_PROGRESS since starting the trip explicitly is optional.
func (r *Ride) Complete() error {
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	if !r.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	r.Status = StatusCompleted
	r.touch()
	return nil
}

// Cancel moves the ride to CANCELLED (terminal).
func (r *Ride) Cancel() error {
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	r.Status = StatusCancelled
	r.touch()
	return nil
}

func (r *Ride) touch() {
	r.UpdatedAt = time.Now().UTC()
}
