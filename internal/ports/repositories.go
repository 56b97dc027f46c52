package ports

import (
	"context"
	"time"

	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/user"
)

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideQuery narrows discovery listings at the store level. Geo matching,
// price caps, and capacity filtering stay in the service so the policy lives
// in one place.
type RideQuery struct {
	ExcludeDriverID string
	DepartAfter     *time.Time
}

// RideRepository defines the methods for managing ride data. CreateRide
// persists the ride together with its pickup, destination, and waypoint rows
// in one atomic write.
type RideRepository interface {
	CreateRide(ctx context.Context, r *ride.Ride) error
	GetByID(ctx context.Context, id string) (*ride.Ride, error)
	// GetByIDForUpdate locks the ride row for the remainder of the enclosing
	// transaction. It is the serialization point for capacity re-checks and
	// lifecycle transitions on that ride.
	GetByIDForUpdate(ctx context.Context, id string) (*ride.Ride, error)
	UpdateState(ctx context.Context, id string, status ride.Status, t ride.Type, updatedAt time.Time) error
	ListOpen(ctx context.Context, q RideQuery) ([]*ride.Ride, error)
	ListByDriver(ctx context.Context, driverID string) ([]*ride.Ride, error)
}

// BookingRepository defines the methods for managing booking data.
type BookingRepository interface {
	Create(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	ListByRide(ctx context.Context, rideID string) ([]*booking.Booking, error)
	ListByPassenger(ctx context.Context, passengerID string) ([]*booking.Booking, error)
	UpdateState(ctx context.Context, id string, status booking.Status, payment booking.PaymentStatus) error
}

// UserRepository resolves users and their vehicles. Profile and vehicle CRUD
// are external concerns; absent rows are reported as (nil, nil).
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetVehicle(ctx context.Context, vehicleID string) (*user.Vehicle, error)
}

// Cache is the read cache collaborator. It is auxiliary and never
// authoritative: staleness is bounded by invalidation-on-write plus the TTL,
// and capacity decisions always read the live store.
type Cache interface {
	// Get unmarshals the cached value into dest and reports whether the key
	// was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// EventPublisher pushes lifecycle events to the message broker. Publishing
// happens after commit and is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Notifier delivers real-time pushes to connected users. A user without an
// open connection is a no-op, never an error.
type Notifier interface {
	Notify(userID string, event any)
}
