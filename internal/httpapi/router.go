package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ridepool/internal/jwt"
)

// Router mounts all marketplace endpoints. Everything except health and
// token minting requires a bearer token.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Post("/tokens", h.handleCreateToken)

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(h.auth))

		r.Route("/rides", func(r chi.Router) {
			r.Post("/", h.handlePublishRide)
			r.Get("/", h.handleFindRides)
			r.Get("/{rideID}", h.handleGetRide)
			r.Post("/{rideID}/book", h.handleBookRide)
			r.Post("/{rideID}/start", h.handleStartRide)
			r.Post("/{rideID}/complete", h.handleCompleteRide)
			r.Post("/{rideID}/cancel", h.handleCancelRide)
		})

		r.Get("/users/{userID}/driver-rides", h.handleDriverRides)
		r.Get("/users/{userID}/passenger-bookings", h.handlePassengerBookings)

		r.Get("/ws", h.hub.ServeHTTP)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
