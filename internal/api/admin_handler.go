package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/service"
	"github.com/caremesh-solutions/caremesh-backend/internal/tenantpool"
)

// PoolStatusReader is the read-only introspection surface of the pool.
type PoolStatusReader interface {
	Status() tenantpool.Status
}

// AdminHandler serves onboarding, tenant administration and the pool debug
// surface.
type AdminHandler struct {
	onboard *service.OnboardService
	tenants *service.TenantService
	pool    PoolStatusReader
}

func NewAdminHandler(onboard *service.OnboardService, tenants *service.TenantService, pool PoolStatusReader) *AdminHandler {
	return &AdminHandler{onboard: onboard, tenants: tenants, pool: pool}
}

func (h *AdminHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req service.OnboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.onboard.Onboard(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrCodeTaken) {
			writeError(w, http.StatusConflict, "tenant_code_taken", "Tenant code already exists")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *AdminHandler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Status())
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	tenant, err := h.tenants.GetTenant(r.Context(), id)
	if err != nil {
		writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	var req service.UpdateTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenant, err := h.tenants.UpdateTenant(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, model.ErrTenantNotFound) {
			writeTenantError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *AdminHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	if err := h.tenants.DeleteTenant(r.Context(), id); err != nil {
		writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func tenantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeTenantError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrTenantNotFound) {
		writeError(w, http.StatusNotFound, "tenant_not_found", "Tenant not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
