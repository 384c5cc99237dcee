package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"courtside.org/internal/audit"
	"courtside.org/internal/auth"
	"courtside.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expires_at"`
	Claims    map[string]any `json:"claims"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	user, err := a.store.Users(r.Context()).FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}
	if user.Status != auth.UserStatusActive {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	a.issueToken(w, r, user.ID, "login")
}

// handleRefresh re-issues a token for the already-authenticated caller,
// typically after an event that changed their roles. The previous token
// stays valid until its own expiry.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	a.issueToken(w, r, claims.SubjectID, "refresh")
}

func (a *API) issueToken(w http.ResponseWriter, r *http.Request, userID, flow string) {
	token, claims, err := a.auth.Issue(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		case errors.Is(err, auth.ErrAggregationFailed):
			// Idempotent read; the client may retry.
			writeError(w, http.StatusServiceUnavailable, "aggregation_failed", "authorization lookup failed, retry")
		case errors.Is(err, auth.ErrSigningKeyUnavailable):
			writeError(w, http.StatusServiceUnavailable, "signing_unavailable", "token signing unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "token issuance failed")
		}
		return
	}

	obs.TokenIssued(flow)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject_id": claims.SubjectID,
		"flow":       flow,
		"expires_at": claims.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Format(time.RFC3339),
		Claims:    claimsPayload(claims),
	})
}
