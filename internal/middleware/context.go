package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/store"
	"github.com/caremesh-solutions/caremesh-backend/internal/tenantpool"
)

// TenantInfo is the resolved tenant binding of a request.
type TenantInfo struct {
	Code          string
	ID            uuid.UUID
	DatasourceURL string
}

// RequestContext carries the authenticated identity and, for tenant-bound
// requests, the tenant metadata and pooled connection. It is attached to the
// request context by the resolver; handlers read it, never mutate requests.
type RequestContext struct {
	UserID   uuid.UUID
	Email    string
	Role     model.UserRole
	AuthType string // "jwt" or "tenant-header"
	Tenant   *TenantInfo
	Conn     tenantpool.Conn
}

type requestCtxKey struct{}

// WithRequestContext returns a derived context carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, rc)
}

// FromContext returns the request context, or nil on bypassed routes.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestCtxKey{}).(*RequestContext)
	return rc
}

// TenantDB returns the query surface of the request's pooled tenant
// connection, or nil when the request has no tenant binding. Callers must
// handle the nil case explicitly: system users proceed without one.
func TenantDB(ctx context.Context) store.TenantQuerier {
	rc := FromContext(ctx)
	if rc == nil || rc.Conn == nil {
		return nil
	}
	q, ok := rc.Conn.(store.TenantQuerier)
	if !ok {
		return nil
	}
	return q
}
