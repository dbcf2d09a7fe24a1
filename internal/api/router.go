package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caremesh-solutions/caremesh-backend/internal/middleware"
)

// NewRouter assembles the HTTP surface. The tenant resolver wraps the whole
// /api/v1 subtree; its own exclusion list decides which paths pass through
// unauthenticated, so routes and exclusions cannot drift apart here.
func NewRouter(
	h *Handler,
	auth *AuthHandler,
	admin *AdminHandler,
	tokens middleware.TokenVerifier,
	dir middleware.Directory,
	pool middleware.ConnPool,
	users middleware.UserValidator,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantResolver(tokens, dir, pool, users))

		r.Get("/health-check", h.Health)
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", auth.Login)
			r.Post("/refresh", auth.Refresh)
			r.Post("/register", auth.Register)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/onboard", admin.Onboard)
			r.Get("/pool/status", admin.PoolStatus)
			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", admin.ListTenants)
				r.Get("/{id}", admin.GetTenant)
				r.Patch("/{id}", admin.UpdateTenant)
				r.Delete("/{id}", admin.DeleteTenant)
			})
		})

		r.Get("/me", h.Me)
		r.Get("/medical-centers", h.MedicalCenters)
	})

	return r
}
