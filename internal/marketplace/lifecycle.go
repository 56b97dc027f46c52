package marketplace

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ridepool/internal/contextx"
	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/user"
	"ridepool/internal/fault"
	"ridepool/internal/logger"
)

// GetRide fetches a ride with its derived remaining capacity.
func (s *Service) GetRide(ctx context.Context, rideID string) (*RideSummary, error) {
	var summary *RideSummary
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.rides.GetByID(ctx, rideID)
		if err != nil {
			return storeErr(err)
		}
		if r == nil {
			return fault.NotFound("ride")
		}
		bookings, err := s.bookings.ListByRide(ctx, r.ID)
		if err != nil {
			return storeErr(err)
		}
		summary = &RideSummary{Ride: r, SeatsRemaining: booking.Remaining(r.SeatCapacity, bookings)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// StartRide moves a ride to IN_PROGRESS. Driver only.
func (s *Service) StartRide(ctx context.Context, rideID, callerID string) (*ride.Ride, error) {
	ctx = contextx.WithRideID(ctx, rideID)

	var (
		started    *ride.Ride
		passengers []string
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.lockDriverRide(ctx, rideID, callerID)
		if err != nil {
			return err
		}
		if err := r.Start(); err != nil {
			return transitionErr(r, err)
		}
		if err := s.rides.UpdateState(ctx, r.ID, r.Status, r.Type, r.UpdatedAt); err != nil {
			return storeErr(err)
		}

		passengers, err = s.activePassengers(ctx, r.ID)
		if err != nil {
			return err
		}
		started = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, s.log, "ride_started", "Ride started", zap.String("driver_id", started.DriverID))

	s.invalidate(ctx, driverRidesKey(started.DriverID))
	s.publish(ctx, routeRideStarted, newRideEvent(started))
	s.notifyAll(passengers, Notification{
		Kind:    "ride_started",
		RideID:  started.ID,
		Message: "Your ride has started",
	})

	return started, nil
}

// CompleteRide moves a ride to COMPLETED and cascades completion to every
// active booking, settling their payments. Driver only.
func (s *Service) CompleteRide(ctx context.Context, rideID, callerID string) (*ride.Ride, error) {
	ctx = contextx.WithRideID(ctx, rideID)

	var (
		completed  *ride.Ride
		passengers []string
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.lockDriverRide(ctx, rideID, callerID)
		if err != nil {
			return err
		}
		if err := r.Complete(); err != nil {
			return transitionErr(r, err)
		}
		if err := s.rides.UpdateState(ctx, r.ID, r.Status, r.Type, r.UpdatedAt); err != nil {
			return storeErr(err)
		}

		bookings, err := s.bookings.ListByRide(ctx, r.ID)
		if err != nil {
			return storeErr(err)
		}
		for _, b := range bookings {
			if !b.Active() {
				continue
			}
			if err := b.Complete(); err != nil {
				return fault.Internal(err)
			}
			if err := s.bookings.UpdateState(ctx, b.ID, b.Status, b.PaymentStatus); err != nil {
				return storeErr(err)
			}
			passengers = append(passengers, b.PassengerID)
		}

		completed = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, s.log, "ride_completed", "Ride completed",
		zap.String("driver_id", completed.DriverID),
		zap.Int("bookings_settled", len(passengers)),
	)

	keys := []string{driverRidesKey(completed.DriverID)}
	for _, p := range passengers {
		keys = append(keys, passengerBookingsKey(p))
	}
	s.invalidate(ctx, keys...)
	s.publish(ctx, routeRideCompleted, newRideEvent(completed))
	s.notifyAll(passengers, Notification{
		Kind:    "ride_completed",
		RideID:  completed.ID,
		Message: "Your ride has been completed",
	})

	return completed, nil
}

// CancelRide is the single entry point for cancellation. The caller's
// relationship to the ride is computed, not asserted: the ride's driver
// cancels the whole ride, a passenger with an active booking cancels only
// that booking, anyone else is refused. roleHint, when given, must agree
// with the computed relationship; it never overrides it. The returned role
// reports which relationship performed the cancellation.
func (s *Service) CancelRide(ctx context.Context, rideID, callerID string, roleHint *user.Role) (user.Role, error) {
	ctx = contextx.WithRideID(ctx, rideID)

	var outcome cancelOutcome

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.rides.GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return storeErr(err)
		}
		if r == nil {
			return fault.NotFound("ride")
		}
		if r.Status.Terminal() {
			return fault.TerminalRide(r.Status.String())
		}

		bookings, err := s.bookings.ListByRide(ctx, r.ID)
		if err != nil {
			return storeErr(err)
		}

		if r.DriverID == callerID {
			if roleHint != nil && !roleHint.IsDriver() {
				return fault.RoleMismatch("caller is the ride's driver")
			}
			outcome, err = s.cancelAsDriver(ctx, r, bookings)
			return err
		}

		own := booking.ActiveFor(bookings, callerID)
		if own == nil {
			return fault.RoleMismatch("caller is neither the driver nor an active passenger on this ride")
		}
		if roleHint != nil && !roleHint.IsPassenger() {
			return fault.RoleMismatch("caller is a passenger on this ride")
		}
		outcome, err = s.cancelAsPassenger(ctx, r, bookings, own)
		return err
	})
	if err != nil {
		return "", err
	}

	outcome.emit(ctx, s)
	if outcome.byDriver {
		return user.RoleDriver, nil
	}
	return user.RolePassenger, nil
}

// cancelAsDriver cancels the ride and refunds every active booking.
func (s *Service) cancelAsDriver(ctx context.Context, r *ride.Ride, bookings []*booking.Booking) (cancelOutcome, error) {
	var passengers []string
	for _, b := range bookings {
		if !b.Active() {
			continue
		}
		if err := b.Cancel(); err != nil {
			return cancelOutcome{}, fault.Internal(err)
		}
		if err := s.bookings.UpdateState(ctx, b.ID, b.Status, b.PaymentStatus); err != nil {
			return cancelOutcome{}, storeErr(err)
		}
		passengers = append(passengers, b.PassengerID)
	}

	if err := r.Cancel(); err != nil {
		return cancelOutcome{}, transitionErr(r, err)
	}
	if err := s.rides.UpdateState(ctx, r.ID, r.Status, r.Type, r.UpdatedAt); err != nil {
		return cancelOutcome{}, storeErr(err)
	}

	return cancelOutcome{ride: r, byDriver: true, passengers: passengers}, nil
}

// cancelAsPassenger refunds the caller's booking and, when it was the last
// active one, returns the ride to the open marketplace.
func (s *Service) cancelAsPassenger(ctx context.Context, r *ride.Ride, bookings []*booking.Booking, own *booking.Booking) (cancelOutcome, error) {
	if err := own.Cancel(); err != nil {
		return cancelOutcome{}, fault.Internal(err)
	}
	if err := s.bookings.UpdateState(ctx, own.ID, own.Status, own.PaymentStatus); err != nil {
		return cancelOutcome{}, storeErr(err)
	}

	if booking.SeatsHeld(bookings) == 0 {
		if err := r.RevertToPublished(); err != nil {
			return cancelOutcome{}, transitionErr(r, err)
		}
		if err := s.rides.UpdateState(ctx, r.ID, r.Status, r.Type, r.UpdatedAt); err != nil {
			return cancelOutcome{}, storeErr(err)
		}
	}

	return cancelOutcome{ride: r, cancelled: own}, nil
}

// cancelOutcome carries the post-commit work out of the transaction so
// events, cache invalidations, and pushes never run inside it.
type cancelOutcome struct {
	ride       *ride.Ride
	byDriver   bool
	cancelled  *booking.Booking
	passengers []string
}

func (o cancelOutcome) emit(ctx context.Context, s *Service) {
	if o.byDriver {
		logger.Info(ctx, s.log, "ride_cancelled", "Ride cancelled by driver",
			zap.Int("bookings_refunded", len(o.passengers)))

		keys := []string{driverRidesKey(o.ride.DriverID)}
		for _, p := range o.passengers {
			keys = append(keys, passengerBookingsKey(p))
		}
		s.invalidate(ctx, keys...)
		s.publish(ctx, routeRideCancelled, newRideEvent(o.ride))
		s.notifyAll(o.passengers, Notification{
			Kind:    "ride_cancelled",
			RideID:  o.ride.ID,
			Message: "Your ride was cancelled by the driver; your payment has been refunded",
		})
		return
	}

	logger.Info(ctx, s.log, "booking_cancelled", "Booking cancelled by passenger",
		zap.String("booking_id", o.cancelled.ID))

	s.invalidate(ctx,
		driverRidesKey(o.ride.DriverID),
		passengerBookingsKey(o.cancelled.PassengerID),
	)
	s.publish(ctx, routeBookingCancelled, newBookingEvent(o.cancelled))
	s.notifier.Notify(o.ride.DriverID, Notification{
		Kind:      "booking_cancelled",
		RideID:    o.ride.ID,
		BookingID: o.cancelled.ID,
		Message:   "A passenger cancelled their booking on your ride",
	})
}

// lockDriverRide locks the ride row and verifies the caller drives it.
func (s *Service) lockDriverRide(ctx context.Context, rideID, callerID string) (*ride.Ride, error) {
	r, err := s.rides.GetByIDForUpdate(ctx, rideID)
	if err != nil {
		return nil, storeErr(err)
	}
	if r == nil {
		return nil, fault.NotFound("ride")
	}
	if r.DriverID != callerID {
		return nil, fault.RoleMismatch("only the ride's driver may do this")
	}
	return r, nil
}

// activePassengers lists the passenger IDs holding active bookings.
func (s *Service) activePassengers(ctx context.Context, rideID string) ([]string, error) {
	bookings, err := s.bookings.ListByRide(ctx, rideID)
	if err != nil {
		return nil, storeErr(err)
	}
	var ids []string
	for _, b := range bookings {
		if b.Active() {
			ids = append(ids, b.PassengerID)
		}
	}
	return ids, nil
}

func (s *Service) notifyAll(userIDs []string, n Notification) {
	for _, id := range userIDs {
		s.notifier.Notify(id, n)
	}
}

// transitionErr maps a domain transition failure to the fault taxonomy.
func transitionErr(r *ride.Ride, err error) error {
	if errors.Is(err, ride.ErrTerminalState) {
		return fault.TerminalRide(r.Status.String())
	}
	return fault.Invalid(err.Error())
}
