package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ridepool/internal/contextx"
	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/ride"
	"ridepool/internal/fault"
	"ridepool/internal/logger"
)

// BookRequest is a passenger's attempt to reserve seats on a ride.
type BookRequest struct {
	RideID          string
	PassengerID     string
	Seats           int
	Source          string
	Destination     string
	SpecialRequests string
}

// BookRide reserves seats for a passenger. It runs in two phases: a cheap
// optimistic pre-check on an unlocked read, then the authoritative check
// inside a transaction holding the ride row lock. Only the locked re-check
// decides; the pre-check exists to reject hopeless requests without
// contending on the lock.
//
// The booking's payment amount is fixed here from the ride's fare and is
// independent of the seat count.
func (s *Service) BookRide(ctx context.Context, req BookRequest) (*booking.Booking, error) {
	ctx = contextx.WithRideID(ctx, req.RideID)

	if err := s.precheckBooking(ctx, req); err != nil {
		return nil, err
	}

	var (
		created *booking.Booking
		onRide  *ride.Ride
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.rides.GetByIDForUpdate(ctx, req.RideID)
		if err != nil {
			return storeErr(err)
		}
		if r == nil {
			return fault.NotFound("ride")
		}

		if err := s.checkBookable(r, req.PassengerID); err != nil {
			return err
		}

		existing, err := s.bookings.ListByRide(ctx, r.ID)
		if err != nil {
			return storeErr(err)
		}
		if booking.ActiveFor(existing, req.PassengerID) != nil {
			return fault.AlreadyBooked()
		}

		seats := req.Seats
		if seats == 0 {
			seats = 1
		}
		remaining := booking.Remaining(r.SeatCapacity, existing)
		if seats > remaining {
			return fault.InsufficientCapacity(remaining)
		}
		if err := s.checkDeparture(r); err != nil {
			return err
		}

		b, err := booking.New(r.ID, req.PassengerID, r.DriverID, seats,
			req.Source, req.Destination, req.SpecialRequests, r.FareAmount())
		if err != nil {
			return fault.Invalid(err.Error())
		}
		if err := s.bookings.Create(ctx, b); err != nil {
			return storeErr(err)
		}

		if r.Type != ride.TypeBooked {
			if err := r.MarkBooked(); err != nil {
				return fault.TerminalRide(r.Status.String())
			}
			if err := s.rides.UpdateState(ctx, r.ID, r.Status, r.Type, r.UpdatedAt); err != nil {
				return storeErr(err)
			}
		}

		created = b
		onRide = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, s.log, "booking_created", "Booking created",
		zap.String("booking_id", created.ID),
		zap.String("passenger_id", created.PassengerID),
		zap.Int("seats", created.Seats()),
	)

	s.invalidate(ctx,
		driverRidesKey(onRide.DriverID),
		passengerBookingsKey(created.PassengerID),
	)
	s.publish(ctx, routeBookingCreated, newBookingEvent(created))
	s.notifier.Notify(onRide.DriverID, Notification{
		Kind:      "booking_created",
		RideID:    onRide.ID,
		BookingID: created.ID,
		Message:   fmt.Sprintf("A passenger booked %d seat(s) on your ride", created.Seats()),
	})

	return created, nil
}

// precheckBooking runs the optimistic phase: an unlocked read transaction.
// Every rejection here would also be rejected under the lock; nothing it
// admits is trusted.
func (s *Service) precheckBooking(ctx context.Context, req BookRequest) error {
	if req.Seats < 0 {
		return fault.Invalid("passenger count must be at least 1")
	}

	return s.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.rides.GetByID(ctx, req.RideID)
		if err != nil {
			return storeErr(err)
		}
		if r == nil {
			return fault.NotFound("ride")
		}

		passenger, err := s.users.GetByID(ctx, req.PassengerID)
		if err != nil {
			return storeErr(err)
		}
		if passenger == nil {
			return fault.NotFound("passenger")
		}

		if err := s.checkBookable(r, req.PassengerID); err != nil {
			return err
		}

		existing, err := s.bookings.ListByRide(ctx, r.ID)
		if err != nil {
			return storeErr(err)
		}
		if booking.ActiveFor(existing, req.PassengerID) != nil {
			return fault.AlreadyBooked()
		}
		seats := req.Seats
		if seats == 0 {
			seats = 1
		}
		if remaining := booking.Remaining(r.SeatCapacity, existing); seats > remaining {
			return fault.InsufficientCapacity(remaining)
		}

		return s.checkDeparture(r)
	})
}

// checkBookable holds the ride-level booking guards shared by both phases.
// The departure check is separate: it ranks after the duplicate and capacity
// checks.
func (s *Service) checkBookable(r *ride.Ride, passengerID string) error {
	if r.Status.Terminal() {
		return fault.TerminalRide(r.Status.String())
	}
	if r.DriverID == passengerID {
		return fault.RoleMismatch("drivers cannot book their own ride")
	}
	return nil
}

// checkDeparture applies the toggleable past-ride rule.
func (s *Service) checkDeparture(r *ride.Ride) error {
	if !s.policy.AllowPastRideBooking && r.DepartureAt.Before(s.now()) {
		return fault.PastRide()
	}
	return nil
}
