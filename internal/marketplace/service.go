// Package marketplace is the ride matching, booking-capacity, and lifecycle
// engine. It owns the invariants of the system: seat capacity is never
// oversold, a passenger holds at most one active booking per ride, and rides
// move through their lifecycle consistently under concurrent cancellation
// and completion.
package marketplace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/cache"
	"ridepool/internal/fault"
	"ridepool/internal/logger"
	"ridepool/internal/ports"
)

// Policy holds the configurable business rules of the engine.
type Policy struct {
	// AllowPastRideBooking permits bookings on rides whose departure time
	// has passed. Off by default; the historical system flip-flopped on the
	// rule, so it is explicit here.
	AllowPastRideBooking bool
	// CacheTTL bounds staleness of read-cache entries.
	CacheTTL time.Duration
}

// Service exposes the engine's operations. All state lives in the store;
// the cache and notifier are best-effort collaborators.
type Service struct {
	log      *zap.Logger
	uow      ports.UnitOfWork
	rides    ports.RideRepository
	bookings ports.BookingRepository
	users    ports.UserRepository
	cache    ports.Cache
	events   ports.EventPublisher
	notifier ports.Notifier
	policy   Policy

	now func() time.Time
}

// NewService wires the engine.
func NewService(
	log *zap.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	bookings ports.BookingRepository,
	users ports.UserRepository,
	readCache ports.Cache,
	events ports.EventPublisher,
	notifier ports.Notifier,
	policy Policy,
) *Service {
	if policy.CacheTTL <= 0 {
		policy.CacheTTL = time.Hour
	}
	return &Service{
		log:      log,
		uow:      uow,
		rides:    rides,
		bookings: bookings,
		users:    users,
		cache:    readCache,
		events:   events,
		notifier: notifier,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// invalidate drops cache keys after a successful mutation. Best-effort and
// idempotent: a failed invalidation is logged and bounded by the TTL.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		logger.Warn(ctx, s.log, "cache_invalidate_failed", "Failed to invalidate cache keys", zap.Strings("keys", keys), zap.String("error", err.Error()))
	}
}

// publish emits a lifecycle event after commit. Best-effort: the state
// change is already durable, so a broker hiccup is logged, not surfaced.
func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		logger.Warn(ctx, s.log, "event_publish_failed", "Failed to publish lifecycle event", zap.String("routing_key", routingKey), zap.String("error", err.Error()))
	}
}

func driverRidesKey(driverID string) string {
	return cache.Key("user", driverID, cache.QueryDriverRides)
}

func passengerBookingsKey(passengerID string) string {
	return cache.Key("user", passengerID, cache.QueryPassengerBookings)
}

// storeErr wraps unexpected store failures. Nothing partial is committed on
// this path, so callers may retry.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fault.Internal(err)
}
