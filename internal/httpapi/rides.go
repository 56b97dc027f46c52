package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/ride"
	"ridepool/internal/jwt"
	"ridepool/internal/marketplace"
)

// --- Request DTOs (HTTP boundary) ---

type locationDTO struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	PlaceName string   `json:"place_name"`
	Address   string   `json:"address"`
}

func (d locationDTO) toLocation() geo.Location {
	return geo.Location{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		PlaceName: strings.TrimSpace(d.PlaceName),
		Address:   strings.TrimSpace(d.Address),
	}
}

func locationView(l geo.Location) locationDTO {
	return locationDTO{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		PlaceName: l.PlaceName,
		Address:   l.Address,
	}
}

type waypointDTO struct {
	locationDTO
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}

type publishRideRequest struct {
	VehicleID   string        `json:"vehicle_id" validate:"required"`
	Pickup      locationDTO   `json:"pickup" validate:"required"`
	Destination locationDTO   `json:"destination" validate:"required"`
	Waypoints   []waypointDTO `json:"waypoints" validate:"max=10,dive"`
	DepartureAt time.Time     `json:"departure_at" validate:"required"`
	Capacity    int           `json:"capacity" validate:"required,min=1"`
	Price       float64       `json:"price" validate:"min=0"`
	PricePerKM  *float64      `json:"price_per_km" validate:"omitempty,min=0"`
}

// --- Response views ---

type rideView struct {
	RideID              string        `json:"ride_id"`
	DriverID            string        `json:"driver_id"`
	VehicleID           string        `json:"vehicle_id"`
	Pickup              locationDTO   `json:"pickup"`
	Destination         locationDTO   `json:"destination"`
	Waypoints           []waypointDTO `json:"waypoints,omitempty"`
	DepartureAt         time.Time     `json:"departure_at"`
	SeatCapacity        int           `json:"seat_capacity"`
	Price               float64       `json:"price"`
	PricePerKM          *float64      `json:"price_per_km,omitempty"`
	EstimatedDistanceKM *float64      `json:"estimated_distance_km,omitempty"`
	Fare                float64       `json:"fare"`
	Status              string        `json:"status"`
	Type                string        `json:"type"`
	CreatedAt           time.Time     `json:"created_at"`
}

type rideSummaryView struct {
	rideView
	SeatsRemaining int `json:"seats_remaining"`
}

func newRideView(r *ride.Ride) rideView {
	wps := make([]waypointDTO, 0, len(r.Route.Waypoints))
	for _, wp := range r.Route.Waypoints {
		wps = append(wps, waypointDTO{
			locationDTO:      locationView(wp.Location),
			EstimatedArrival: wp.EstimatedArrival,
		})
	}
	return rideView{
		RideID:              r.ID,
		DriverID:            r.DriverID,
		VehicleID:           r.VehicleID,
		Pickup:              locationView(r.Route.Pickup),
		Destination:         locationView(r.Route.Destination),
		Waypoints:           wps,
		DepartureAt:         r.DepartureAt,
		SeatCapacity:        r.SeatCapacity,
		Price:               r.Price,
		PricePerKM:          r.PricePerKM,
		EstimatedDistanceKM: r.EstimatedDistanceKM,
		Fare:                r.FareAmount(),
		Status:              r.Status.String(),
		Type:                r.Type.String(),
		CreatedAt:           r.CreatedAt,
	}
}

func newRideSummaryView(s marketplace.RideSummary) rideSummaryView {
	return rideSummaryView{rideView: newRideView(s.Ride), SeatsRemaining: s.SeatsRemaining}
}

// ----- Handler: POST /rides -----

func (h *Handler) handlePublishRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	var req publishRideRequest
	if !h.decodeJSON(ctx, w, r, &req) {
		return
	}

	wps := make([]geo.Waypoint, 0, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		wps = append(wps, geo.Waypoint{
			StopOrder:        i + 1,
			Location:         wp.toLocation(),
			EstimatedArrival: wp.EstimatedArrival,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	published, err := h.svc.PublishRide(ctx, marketplace.PublishRequest{
		DriverID:    jwt.CallerID(ctx),
		VehicleID:   req.VehicleID,
		Pickup:      req.Pickup.toLocation(),
		Destination: req.Destination.toLocation(),
		Waypoints:   wps,
		DepartureAt: req.DepartureAt,
		Capacity:    req.Capacity,
		Price:       req.Price,
		PricePerKM:  req.PricePerKM,
	})
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}

	h.jsonResponse(ctx, w, http.StatusCreated, newRideView(published))
}

// ----- Handler: GET /rides -----

func (h *Handler) handleFindRides(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	q := marketplace.DiscoveryQuery{PassengerID: jwt.CallerID(ctx)}

	var err error
	if q.Pickup, err = locationParam(r, "pickup"); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}
	if q.Destination, err = locationParam(r, "destination"); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}
	if raw := r.URL.Query().Get("max_price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 {
			h.httpError(ctx, w, http.StatusBadRequest, "max_price must be a non-negative number", err)
			return
		}
		q.MaxPrice = &p
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	matches, err := h.svc.FindMatchingRides(ctx, q)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}

	views := make([]rideSummaryView, 0, len(matches))
	for _, m := range matches {
		views = append(views, newRideSummaryView(m))
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]any{"rides": views})
}

// ----- Handler: GET /rides/{rideID} -----

func (h *Handler) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	rideID := chi.URLParam(r, "rideID")

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	summary, err := h.svc.GetRide(ctx, rideID)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, newRideSummaryView(*summary))
}

// ----- Handler: GET /users/{userID}/driver-rides -----

func (h *Handler) handleDriverRides(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	userID := chi.URLParam(r, "userID")
	if userID != jwt.CallerID(ctx) {
		h.httpError(ctx, w, http.StatusForbidden, "cannot list another user's rides", nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	rides, err := h.svc.ListDriverRides(ctx, userID)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}

	views := make([]rideView, 0, len(rides))
	for _, rd := range rides {
		views = append(views, newRideView(rd))
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]any{"rides": views})
}

// locationParam assembles an optional location filter from query parameters
// named {prefix}_lat, {prefix}_lng, and {prefix}_name. Absent parameters
// mean no filter; a half-specified coordinate pair is an error.
func locationParam(r *http.Request, prefix string) (*geo.Location, error) {
	qs := r.URL.Query()
	rawLat := qs.Get(prefix + "_lat")
	rawLng := qs.Get(prefix + "_lng")
	name := strings.TrimSpace(qs.Get(prefix + "_name"))

	if rawLat == "" && rawLng == "" && name == "" {
		return nil, nil
	}
	if (rawLat == "") != (rawLng == "") {
		return nil, &paramError{prefix + "_lat and " + prefix + "_lng must be given together"}
	}

	loc := geo.Location{PlaceName: name}
	if rawLat != "" {
		lat, err := strconv.ParseFloat(rawLat, 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, &paramError{prefix + "_lat must be a latitude"}
		}
		lng, err := strconv.ParseFloat(rawLng, 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, &paramError{prefix + "_lng must be a longitude"}
		}
		loc.Latitude = &lat
		loc.Longitude = &lng
	}
	return &loc, nil
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }
