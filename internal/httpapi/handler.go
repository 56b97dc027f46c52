// Package httpapi adapts HTTP requests to the marketplace engine. It owns
// request decoding, input validation, and the error-to-status translation;
// all business rules live behind it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridepool/internal/contextx"
	"ridepool/internal/fault"
	"ridepool/internal/jwt"
	"ridepool/internal/logger"
	"ridepool/internal/marketplace"
	"ridepool/internal/ws"
)

const serviceTimeout = 5 * time.Second

// Handler adapts HTTP requests to the marketplace service.
type Handler struct {
	svc      *marketplace.Service
	log      *zap.Logger
	auth     *jwt.Manager
	hub      *ws.Hub
	validate *validator.Validate
}

// NewHandler wires an HTTP handler around the marketplace service.
func NewHandler(svc *marketplace.Service, log *zap.Logger, auth *jwt.Manager, hub *ws.Hub) *Handler {
	return &Handler{
		svc:      svc,
		log:      log,
		auth:     auth,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// decodeJSON reads a bounded, strictly decoded JSON body into dst and runs
// struct validation. It writes the error response itself and reports whether
// decoding succeeded.
func (h *Handler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, validationMessage(err), err)
		return false
	}

	return true
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag()+" validation")
	}
	return strings.Join(parts, "; ")
}

// serviceError translates an engine error into the HTTP response.
func (h *Handler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	fe := fault.FromError(err)
	status := fault.HTTPStatus(err)

	if status >= 500 {
		logger.Error(ctx, h.log, "request_failed", fe.Message, err)
	} else {
		logger.Info(ctx, h.log, "request_rejected", fe.Message, zap.String("code", fe.Code))
	}

	h.jsonResponse(ctx, w, status, map[string]string{"code": fe.Code, "error": fe.Message})
}

func (h *Handler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		logger.Info(ctx, h.log, "request_rejected", msg, zap.String("error", err.Error()))
	}
	h.jsonResponse(ctx, w, status, map[string]string{"error": msg})
}

// jsonResponse encodes to a buffer first so the status line stays correct on
// encode failure.
func (h *Handler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf := []byte("{}")
	if data != nil {
		var err error
		buf, err = json.Marshal(data)
		if err != nil {
			logger.Error(ctx, h.log, "response_encode_failed", "Failed to encode response", err)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// withReqID threads the client's X-Request-ID (or a fresh one) through the
// request context for log correlation.
func withReqID(r *http.Request) context.Context {
	reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return contextx.WithRequestID(r.Context(), reqID)
}
