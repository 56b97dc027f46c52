package httpapi

import (
	"net/http"
	"time"
)

type tokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// handleCreateToken mints a bearer token for a known user ID. This stands in
// for the real identity provider in development and test environments.
func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := withReqID(r)

	var req tokenRequest
	if !h.decodeJSON(ctx, w, r, &req) {
		return
	}

	token, claims, err := h.auth.IssueToken(req.UserID)
	if err != nil {
		h.httpError(ctx, w, http.StatusInternalServerError, "failed to generate token", err)
		return
	}

	h.jsonResponse(ctx, w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
	})
}
