package marketplace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/ride"
	"ridepool/internal/logger"
	"ridepool/internal/ports"
)

// DiscoveryQuery is a passenger's search for matching rides. Pickup and
// Destination are optional filters; nil means "no preference".
type DiscoveryQuery struct {
	PassengerID string
	Pickup      *geo.Location
	Destination *geo.Location
	MaxPrice    *float64
}

// RideSummary is the discovery view of a ride: the ride plus its derived
// remaining capacity at read time. Remaining is informational only; the
// booking transaction re-derives it under the ride lock.
type RideSummary struct {
	Ride           *ride.Ride `json:"ride"`
	SeatsRemaining int        `json:"seats_remaining"`
}

// FindMatchingRides lists open rides compatible with the query. Results
// exclude the passenger's own published rides, full rides, rides over the
// price cap, and (unless past-ride booking is allowed) departed rides.
// Route compatibility is decided by geo.Route.Matches.
//
// This path is never cached: remaining capacity must reflect the live
// booking set or passengers would chase seats that are already gone.
func (s *Service) FindMatchingRides(ctx context.Context, q DiscoveryQuery) ([]RideSummary, error) {
	var (
		out        []RideSummary
		candidates int
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		// same toggle as the booking guard: when past rides are bookable
		// they stay discoverable too
		var departAfter *time.Time
		if !s.policy.AllowPastRideBooking {
			now := s.now()
			departAfter = &now
		}
		rides, err := s.rides.ListOpen(ctx, ports.RideQuery{
			ExcludeDriverID: q.PassengerID,
			DepartAfter:     departAfter,
		})
		if err != nil {
			return storeErr(err)
		}
		candidates = len(rides)

		out = make([]RideSummary, 0, len(rides))
		for _, r := range rides {
			if q.MaxPrice != nil && r.FareAmount() > *q.MaxPrice {
				continue
			}
			if !r.Route.Matches(q.Pickup, q.Destination) {
				continue
			}

			bookings, err := s.bookings.ListByRide(ctx, r.ID)
			if err != nil {
				return storeErr(err)
			}
			remaining := booking.Remaining(r.SeatCapacity, bookings)
			if remaining <= 0 {
				continue
			}

			out = append(out, RideSummary{Ride: r, SeatsRemaining: remaining})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, s.log, "rides_matched", "Discovery query evaluated",
		zap.Int("candidates", candidates),
		zap.Int("matches", len(out)),
	)
	return out, nil
}

// ListDriverRides returns all rides published by a driver, newest departure
// first, served through the read cache.
func (s *Service) ListDriverRides(ctx context.Context, driverID string) ([]*ride.Ride, error) {
	key := driverRidesKey(driverID)

	var cached []*ride.Ride
	if hit := s.cacheGet(ctx, key, &cached); hit {
		return cached, nil
	}

	var rides []*ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rides, err = s.rides.ListByDriver(ctx, driverID)
		return storeErr(err)
	})
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, rides)
	return rides, nil
}

// ListPassengerBookings returns a passenger's bookings, newest first, served
// through the read cache.
func (s *Service) ListPassengerBookings(ctx context.Context, passengerID string) ([]*booking.Booking, error) {
	key := passengerBookingsKey(passengerID)

	var cached []*booking.Booking
	if hit := s.cacheGet(ctx, key, &cached); hit {
		return cached, nil
	}

	var bookings []*booking.Booking
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		bookings, err = s.bookings.ListByPassenger(ctx, passengerID)
		return storeErr(err)
	})
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, bookings)
	return bookings, nil
}

// cacheGet reads a cached listing. A cache failure degrades to a miss so the
// store remains the fallback on every path.
func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		logger.Warn(ctx, s.log, "cache_read_failed", "Cache read failed, falling through to store",
			zap.String("key", key), zap.String("error", err.Error()))
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, s.policy.CacheTTL); err != nil {
		logger.Warn(ctx, s.log, "cache_write_failed", "Cache write failed",
			zap.String("key", key), zap.String("error", err.Error()))
	}
}
