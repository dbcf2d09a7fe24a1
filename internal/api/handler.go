package api

import (
	"net/http"

	"github.com/caremesh-solutions/caremesh-backend/internal/middleware"
	"github.com/caremesh-solutions/caremesh-backend/internal/store"
)

// Handler serves the health and per-tenant read endpoints.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the authenticated identity bound to the request.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	rc := middleware.FromContext(r.Context())
	if rc == nil {
		writeError(w, http.StatusUnauthorized, "auth_required", "Authentication required")
		return
	}

	resp := map[string]any{
		"userId": rc.UserID,
		"email":  rc.Email,
		"role":   rc.Role,
	}
	if rc.Tenant != nil {
		resp["tenantCode"] = rc.Tenant.Code
	}
	writeJSON(w, http.StatusOK, resp)
}

// MedicalCenters lists the organizations in the caller's tenant schema. It
// requires a tenant binding: system users without an x-tenant-code header
// have no schema to read from.
func (h *Handler) MedicalCenters(w http.ResponseWriter, r *http.Request) {
	q := middleware.TenantDB(r.Context())
	if q == nil {
		writeError(w, http.StatusBadRequest, "tenant_required", "Request is not bound to a tenant")
		return
	}

	centers, err := store.ListMedicalCenters(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, centers)
}
