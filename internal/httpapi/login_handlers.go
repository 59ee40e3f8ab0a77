package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"memorio.org/internal/auth"
	"memorio.org/internal/login"
	"memorio.org/internal/obs"
)

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ExpectedRole string `json:"expectedRole"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gate == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "login disabled", nil)
		return
	}

	var req loginRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	result, err := a.gate.Attempt(r.Context(), login.Request{
		Email:        req.Email,
		Password:     req.Password,
		ExpectedRole: auth.Role(req.ExpectedRole),
		ClientIP:     clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		a.writeLoginError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": result.Session,
		"user":    result.User,
	})
}

func (a *API) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rateLimited *login.RateLimitedError
		invalid     *login.InvalidCredentialsError
		denied      *login.AccessDeniedError
	)
	switch {
	case errors.As(err, &rateLimited):
		obs.ObserveLogin("rate_limited")
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.Limit.MinutesRemaining*60))
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", err.Error(), map[string]any{
			"attempts":          rateLimited.Limit.AttemptCount,
			"max_attempts":      rateLimited.Limit.MaxAttempts,
			"minutes_remaining": rateLimited.Limit.MinutesRemaining,
		})
	case errors.As(err, &invalid):
		obs.ObserveLogin("invalid_credentials")
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", err.Error(), map[string]any{
			"attempts_remaining": invalid.AttemptsRemaining,
		})
	case errors.As(err, &denied):
		obs.ObserveLogin("access_denied")
		writeError(w, r, http.StatusForbidden, "access_denied", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidInput):
		obs.ObserveLogin("invalid_request")
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	default:
		obs.ObserveLogin("error")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "login temporarily unavailable", nil)
	}
}
