package api

import (
	"errors"
	"net/http"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/monitoring"
	"github.com/caremesh-solutions/caremesh-backend/internal/service"
)

// AuthHandler serves the public authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTenantNotFound), errors.Is(err, model.ErrTenantNotActive):
			monitoring.AuthFailures.WithLabelValues("invalid_tenant").Inc()
			writeError(w, http.StatusUnauthorized, "invalid_tenant", "Invalid tenant")
		case errors.Is(err, model.ErrInvalidCredentials):
			monitoring.AuthFailures.WithLabelValues("invalid_credentials").Inc()
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		case errors.Is(err, model.ErrDatasourceUnreachable):
			writeError(w, http.StatusInternalServerError, "datasource_unreachable", "Tenant has no reachable datasource")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Refresh token is required")
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		monitoring.AuthFailures.WithLabelValues("invalid_token").Inc()
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email and a password of at least 8 characters are required")
		return
	}

	result, err := h.auth.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeError(w, http.StatusConflict, "user_not_provisioned", "No pre-provisioned user exists for this email")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
