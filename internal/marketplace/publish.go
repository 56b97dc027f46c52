package marketplace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/contextx"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/ride"
	"ridepool/internal/fault"
	"ridepool/internal/logger"
)

// PublishRequest carries everything needed to put a ride on the marketplace.
type PublishRequest struct {
	DriverID    string
	VehicleID   string
	Pickup      geo.Location
	Destination geo.Location
	Waypoints   []geo.Waypoint
	DepartureAt time.Time
	Capacity    int
	Price       float64
	PricePerKM  *float64
}

// PublishRide creates a ride in UPCOMING/PUBLISHED state. The ride row and
// its location rows are created atomically; locations are owned by the ride
// and immutable afterwards.
func (s *Service) PublishRide(ctx context.Context, req PublishRequest) (*ride.Ride, error) {
	var published *ride.Ride

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		driver, err := s.users.GetByID(ctx, req.DriverID)
		if err != nil {
			return storeErr(err)
		}
		if driver == nil {
			return fault.NotFound("driver")
		}

		vehicle, err := s.users.GetVehicle(ctx, req.VehicleID)
		if err != nil {
			return storeErr(err)
		}
		if vehicle == nil {
			return fault.NotFound("vehicle")
		}
		if vehicle.OwnerID != driver.ID {
			return fault.RoleMismatch("vehicle does not belong to the publishing driver")
		}
		if req.Capacity > vehicle.Capacity {
			return fault.CapacityExceedsVehicle(req.Capacity, vehicle.Capacity)
		}

		route := geo.Route{
			Pickup:      req.Pickup,
			Destination: req.Destination,
			Waypoints:   dedupeWaypoints(req.Waypoints, req.Pickup, req.Destination),
		}

		r, err := ride.New(req.DriverID, req.VehicleID, route, req.DepartureAt, req.Capacity, req.Price, req.PricePerKM)
		if err != nil {
			return fault.Invalid(err.Error())
		}

		if err := s.rides.CreateRide(ctx, r); err != nil {
			return storeErr(err)
		}

		published = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = contextx.WithRideID(ctx, published.ID)
	logger.Info(ctx, s.log, "ride_published", "Ride published",
		zap.String("driver_id", published.DriverID),
		zap.Int("capacity", published.SeatCapacity),
	)

	s.invalidate(ctx, driverRidesKey(published.DriverID))
	s.publish(ctx, routeRidePublished, newRideEvent(published))

	return published, nil
}

// dedupeWaypoints drops stops that duplicate the ride's endpoints. Two
// points within 50 m count as identical.
func dedupeWaypoints(wps []geo.Waypoint, pickup, destination geo.Location) []geo.Waypoint {
	out := make([]geo.Waypoint, 0, len(wps))
	for _, wp := range wps {
		if geo.SamePlace(wp.Location, pickup, geo.SamePlaceKM) ||
			geo.SamePlace(wp.Location, destination, geo.SamePlaceKM) {
			continue
		}
		out = append(out, wp)
	}
	return out
}
