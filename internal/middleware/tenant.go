package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/monitoring"
	"github.com/caremesh-solutions/caremesh-backend/internal/service"
	"github.com/caremesh-solutions/caremesh-backend/internal/store"
	"github.com/caremesh-solutions/caremesh-backend/internal/tenantpool"
)

const headerTenantCode = "x-tenant-code"

// TokenVerifier verifies bearer tokens for the resolver.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*service.Claims, error)
}

// Directory resolves tenant codes to metadata and datasource URLs.
type Directory interface {
	GetByCode(ctx context.Context, code string) (*model.Tenant, error)
}

// ConnPool is the acquire/release surface of the tenant connection pool.
type ConnPool interface {
	Get(ctx context.Context, url string) (tenantpool.Conn, error)
	Release(url string)
}

// UserValidator performs the post-auth user check.
type UserValidator interface {
	ValidateTenantUser(ctx context.Context, q store.TenantQuerier, userID uuid.UUID) (*model.User, error)
	ValidateSystemUser(ctx context.Context, userID uuid.UUID) (*model.SystemUser, error)
}

// TenantResolver authenticates a request and binds it to its tenant: it
// verifies the bearer token, resolves the tenant code from the claims through
// the directory, acquires the pooled connection for the tenant's datasource,
// and attaches a typed RequestContext. The connection is released when the
// handler returns, whether it finished normally or panicked. System users
// (no tenant code in the token) proceed without a tenant binding.
func TenantResolver(tokens TokenVerifier, dir Directory, pool ConnPool, users UserValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Bypassed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				monitoring.AuthFailures.WithLabelValues("missing_header").Inc()
				writeAuthError(w, http.StatusUnauthorized, "auth_header_missing", "Authorization header missing or malformed")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				monitoring.AuthFailures.WithLabelValues("invalid_token").Inc()
				writeAuthError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				monitoring.AuthFailures.WithLabelValues("invalid_token").Inc()
				writeAuthError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
				return
			}

			rc := &RequestContext{
				UserID:   userID,
				Email:    claims.Email,
				Role:     claims.Role,
				AuthType: "jwt",
			}

			if claims.TenantCode == "" {
				// System user: no tenant, no pooled connection. An
				// x-tenant-code header may still scope the request.
				if _, err := users.ValidateSystemUser(r.Context(), userID); err != nil {
					writeUserValidationError(w, err)
					return
				}
				resolveHeaderTenant(r, dir, pool, rc)
				if rc.Tenant != nil {
					defer pool.Release(rc.Tenant.DatasourceURL)
				}
				next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
				return
			}

			tenant, err := dir.GetByCode(r.Context(), claims.TenantCode)
			if err != nil {
				monitoring.AuthFailures.WithLabelValues("tenant_not_found").Inc()
				writeAuthError(w, http.StatusUnauthorized, "tenant_not_found", "Tenant not found")
				return
			}
			if tenant.DataSource == nil || tenant.DataSource.URL == "" {
				writeAuthError(w, http.StatusInternalServerError, "datasource_unreachable", "Tenant has no reachable datasource")
				return
			}

			url := tenant.DataSource.URL
			conn, err := pool.Get(r.Context(), url)
			if err != nil {
				log.Error().Err(err).Str("tenant_code", tenant.Code).Msg("Failed to acquire tenant connection")
				writeAuthError(w, http.StatusInternalServerError, "datasource_unreachable", "Tenant has no reachable datasource")
				return
			}
			// Release is idempotent: a no-op on an already-released key, so
			// at-least-once invocation is safe.
			defer pool.Release(url)

			rc.Tenant = &TenantInfo{Code: tenant.Code, ID: tenant.ID, DatasourceURL: url}
			rc.Conn = conn

			// The user check is mandatory on every tenant-bound request: a
			// handle that cannot run it is as unusable as a failed dial.
			q, ok := conn.(store.TenantQuerier)
			if !ok {
				log.Error().Str("tenant_code", tenant.Code).Msg("Tenant connection does not support queries")
				writeAuthError(w, http.StatusInternalServerError, "datasource_unreachable", "Tenant has no reachable datasource")
				return
			}
			if _, err := users.ValidateTenantUser(r.Context(), q, userID); err != nil {
				writeUserValidationError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
		})
	}
}

// resolveHeaderTenant handles the secondary, header-scoped path for system
// roles. Failures here are non-fatal: the request proceeds tenant-unbound.
func resolveHeaderTenant(r *http.Request, dir Directory, pool ConnPool, rc *RequestContext) {
	if !rc.Role.IsSystemRole() {
		return
	}
	code := r.Header.Get(headerTenantCode)
	if code == "" {
		return
	}

	tenant, err := dir.GetByCode(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Str("tenant_code", code).Msg("Header tenant scope not resolved")
		return
	}
	if tenant.DataSource == nil || tenant.DataSource.URL == "" {
		return
	}
	conn, err := pool.Get(r.Context(), tenant.DataSource.URL)
	if err != nil {
		log.Warn().Err(err).Str("tenant_code", code).Msg("Header tenant connection not acquired")
		return
	}
	rc.AuthType = "tenant-header"
	rc.Tenant = &TenantInfo{Code: tenant.Code, ID: tenant.ID, DatasourceURL: tenant.DataSource.URL}
	rc.Conn = conn
}

func writeUserValidationError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrUserArchived) {
		monitoring.AuthFailures.WithLabelValues("user_archived").Inc()
		writeAuthError(w, http.StatusUnauthorized, "user_archived", "User is archived")
		return
	}
	monitoring.AuthFailures.WithLabelValues("user_not_found").Inc()
	writeAuthError(w, http.StatusUnauthorized, "user_not_found", "User not found")
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
