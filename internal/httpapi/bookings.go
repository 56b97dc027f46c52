package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/user"
	"ridepool/internal/jwt"
	"ridepool/internal/marketplace"
)

// --- Request DTOs (HTTP boundary) ---

type bookRideRequest struct {
	Seats           int    `json:"seats" validate:"min=0,max=16"`
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	SpecialRequests string `json:"special_requests" validate:"max=500"`
}

type cancelRideRequest struct {
	// Role is an optional assertion checked against the caller's actual
	// relationship to the ride. It never selects the behavior.
	Role string `json:"role" validate:"omitempty,oneof=DRIVER PASSENGER driver passenger"`
}

// --- Response views ---

type bookingView struct {
	BookingID       string    `json:"booking_id"`
	RideID          string    `json:"ride_id"`
	PassengerID     string    `json:"passenger_id"`
	DriverID        string    `json:"driver_id"`
	Seats           int       `json:"seats"`
	Source          string    `json:"source,omitempty"`
	Destination     string    `json:"destination,omitempty"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	PaymentAmount   float64   `json:"payment_amount"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newBookingView(b *booking.Booking) bookingView {
	return bookingView{
		BookingID:       b.ID,
		RideID:          b.RideID,
		PassengerID:     b.PassengerID,
		DriverID:        b.DriverID,
		Seats:           b.Seats(),
		Source:          b.Source,
		Destination:     b.Destination,
		Status:          b.Status.String(),
		PaymentStatus:   b.PaymentStatus.String(),
		PaymentAmount:   b.PaymentAmount,
		SpecialRequests: b.SpecialRequests,
		CreatedAt:       b.CreatedAt,
	}
}

// ----- Handler: POST /rides/{rideID}/book -----

func (h *Handler) handleBookRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	var req bookRideRequest
	if !h.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	created, err := h.svc.BookRide(ctx, marketplace.BookRequest{
		RideID:          chi.URLParam(r, "rideID"),
		PassengerID:     jwt.CallerID(ctx),
		Seats:           req.Seats,
		Source:          req.Source,
		Destination:     req.Destination,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}

	h.jsonResponse(ctx, w, http.StatusCreated, newBookingView(created))
}

// ----- Handler: POST /rides/{rideID}/start -----

func (h *Handler) handleStartRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	started, err := h.svc.StartRide(ctx, chi.URLParam(r, "rideID"), jwt.CallerID(ctx))
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, newRideView(started))
}

// ----- Handler: POST /rides/{rideID}/complete -----

func (h *Handler) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	completed, err := h.svc.CompleteRide(ctx, chi.URLParam(r, "rideID"), jwt.CallerID(ctx))
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, newRideView(completed))
}

// ----- Handler: POST /rides/{rideID}/cancel -----

func (h *Handler) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	// body is optional on this endpoint
	var roleHint *user.Role
	if r.ContentLength > 0 {
		var req cancelRideRequest
		if !h.decodeJSON(ctx, w, r, &req) {
			return
		}
		if req.Role != "" {
			role, err := user.ParseRole(req.Role)
			if err != nil {
				h.httpError(ctx, w, http.StatusBadRequest, "role must be DRIVER or PASSENGER", err)
				return
			}
			roleHint = &role
		}
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	cancelledBy, err := h.svc.CancelRide(ctx, chi.URLParam(r, "rideID"), jwt.CallerID(ctx), roleHint)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{
		"status":       "cancelled",
		"cancelled_by": cancelledBy.String(),
	})
}

// ----- Handler: GET /users/{userID}/passenger-bookings -----

func (h *Handler) handlePassengerBookings(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	userID := chi.URLParam(r, "userID")
	if userID != jwt.CallerID(ctx) {
		h.httpError(ctx, w, http.StatusForbidden, "cannot list another user's bookings", nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	bookings, err := h.svc.ListPassengerBookings(ctx, userID)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}

	views := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, newBookingView(b))
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]any{"bookings": views})
}
