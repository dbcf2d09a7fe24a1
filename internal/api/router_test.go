package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/service"
	"github.com/caremesh-solutions/caremesh-backend/internal/tenantpool"
)

// fakeRegistry backs every registry-facing service interface in one struct so
// the router can be exercised end to end without a database.
type fakeRegistry struct {
	tenants     map[string]*model.Tenant // keyed by code
	systemUsers map[string]*model.SystemUser
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		tenants:     map[string]*model.Tenant{},
		systemUsers: map[string]*model.SystemUser{},
	}
}

func (f *fakeRegistry) GetByCode(_ context.Context, code string) (*model.Tenant, error) {
	tenant, ok := f.tenants[code]
	if !ok {
		return nil, model.ErrTenantNotFound
	}
	return tenant, nil
}

func (f *fakeRegistry) GetActiveByCode(ctx context.Context, code string) (*model.Tenant, error) {
	tenant, err := f.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if tenant.Status != model.TenantStatusActive {
		return nil, model.ErrTenantNotActive
	}
	return tenant, nil
}

func (f *fakeRegistry) GetByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	for _, tenant := range f.tenants {
		if tenant.ID == id {
			return tenant, nil
		}
	}
	return nil, model.ErrTenantNotFound
}

func (f *fakeRegistry) List(context.Context) ([]*model.Tenant, error) {
	var tenants []*model.Tenant
	for _, tenant := range f.tenants {
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

func (f *fakeRegistry) Update(_ context.Context, tenant *model.Tenant) error {
	if _, ok := f.tenants[tenant.Code]; !ok {
		return model.ErrTenantNotFound
	}
	f.tenants[tenant.Code] = tenant
	return nil
}

func (f *fakeRegistry) Delete(_ context.Context, id uuid.UUID) error {
	for code, tenant := range f.tenants {
		if tenant.ID == id {
			delete(f.tenants, code)
			return nil
		}
	}
	return model.ErrTenantNotFound
}

func (f *fakeRegistry) RotateDataSourceURL(_ context.Context, tenantID uuid.UUID, url string) error {
	for _, tenant := range f.tenants {
		if tenant.ID == tenantID {
			tenant.DataSource = &model.DataSource{TenantID: tenantID, URL: url}
			return nil
		}
	}
	return model.ErrTenantNotFound
}

func (f *fakeRegistry) CreateWithDataSource(_ context.Context, tenant *model.Tenant, datasourceURL string) error {
	tenant.ID = uuid.New()
	tenant.DataSource = &model.DataSource{TenantID: tenant.ID, URL: datasourceURL}
	f.tenants[tenant.Code] = tenant
	return nil
}

func (f *fakeRegistry) UpdateStatus(_ context.Context, id uuid.UUID, status model.TenantStatus, provisioned bool) error {
	for _, tenant := range f.tenants {
		if tenant.ID == id {
			tenant.Status = status
			tenant.Provisioned = provisioned
			return nil
		}
	}
	return model.ErrTenantNotFound
}

func (f *fakeRegistry) CreateProvisioningLog(context.Context, uuid.UUID, string, string, interface{}) error {
	return nil
}

func (f *fakeRegistry) GetSystemUserByEmail(_ context.Context, email string) (*model.SystemUser, error) {
	user, ok := f.systemUsers[email]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRegistry) GetSystemUserByID(_ context.Context, id uuid.UUID) (*model.SystemUser, error) {
	for _, user := range f.systemUsers {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (f *fakeRegistry) SetSystemUserPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	for _, user := range f.systemUsers {
		if user.ID == id {
			user.PasswordHash = passwordHash
			return nil
		}
	}
	return model.ErrUserNotFound
}

type queueRecorder struct {
	jobs []service.ProvisionJob
}

func (q *queueRecorder) QueueForProvisioning(job service.ProvisionJob) {
	q.jobs = append(q.jobs, job)
}

type memConn struct{}

func (memConn) Ping(context.Context) error { return nil }
func (memConn) Close() error               { return nil }

type apiFixture struct {
	registry *fakeRegistry
	queue    *queueRecorder
	pool     *tenantpool.Pool
	tokens   *service.TokenService
	server   *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	registry := newFakeRegistry()
	queue := &queueRecorder{}
	pool := tenantpool.New(tenantpool.Options{
		Dial: func(context.Context, string) (tenantpool.Conn, error) { return memConn{}, nil },
	})
	t.Cleanup(pool.Shutdown)

	tokens := service.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	auth := service.NewAuthService(registry, pool, tokens)
	onboard := service.NewOnboardService(registry, queue, "postgres://localhost:5432/tenants")
	tenants := service.NewTenantService(registry)

	router := NewRouter(
		NewHandler(),
		NewAuthHandler(auth),
		NewAdminHandler(onboard, tenants, pool),
		tokens, registry, pool, auth,
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{registry: registry, queue: queue, pool: pool, tokens: tokens, server: server}
}

func (f *apiFixture) addSystemUser(t *testing.T, email, password string) *model.SystemUser {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.SystemUser{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleSuperAdmin,
	}
	f.registry.systemUsers[email] = user
	return user
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthCheckNeedsNoAuth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/health-check", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginSystemUserEndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	f.addSystemUser(t, "admin@caremesh.test", "adminpass1")

	resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "admin@caremesh.test",
		"password": "adminpass1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result service.AuthResult
	decodeBody(t, resp, &result)
	assert.NotEmpty(t, result.Tokens.AccessToken)

	// The minted token must open the protected surface.
	me := f.do(t, http.MethodGet, "/api/v1/me", result.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	f.addSystemUser(t, "admin@caremesh.test", "adminpass1")

	resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "admin@caremesh.test",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "invalid_credentials", body["code"])
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOnboardEndToEnd(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/admin/onboard", "", map[string]string{
		"medicalCenterName": "City Clinic",
		"address":           "1 Main St",
		"email":             "owner@clinic.test",
		"password":          "s3cretpass",
		"firstName":         "Ada",
		"lastName":          "Nguyen",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result service.OnboardResult
	decodeBody(t, resp, &result)
	assert.Equal(t, model.TenantStatusProvisioning, result.Status)
	assert.Len(t, f.queue.jobs, 1)
	assert.Equal(t, result.TenantCode, f.queue.jobs[0].Tenant.Code)
}

func TestOnboardValidationError(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/admin/onboard", "", map[string]string{
		"medicalCenterName": "City Clinic",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.queue.jobs)
}

func TestPoolStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	_, err := f.pool.Get(context.Background(), "postgres://localhost:5432/tenants?search_path=a")
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/v1/admin/pool/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status tenantpool.Status
	decodeBody(t, resp, &status)
	assert.Equal(t, 1, status.TotalConnections)
	assert.Equal(t, 1, status.ActiveConnections)
}

func TestTenantAdminLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	onboard := f.do(t, http.MethodPost, "/api/v1/admin/onboard", "", map[string]string{
		"medicalCenterName": "City Clinic",
		"address":           "1 Main St",
		"email":             "owner@clinic.test",
		"password":          "s3cretpass",
		"firstName":         "Ada",
		"lastName":          "Nguyen",
	})
	require.Equal(t, http.StatusAccepted, onboard.StatusCode)
	var created service.OnboardResult
	decodeBody(t, onboard, &created)

	get := f.do(t, http.MethodGet, "/api/v1/admin/tenants/"+created.TenantID.String(), "", nil)
	assert.Equal(t, http.StatusOK, get.StatusCode)

	update := f.do(t, http.MethodPatch, "/api/v1/admin/tenants/"+created.TenantID.String(), "", map[string]string{
		"name":   "City Clinic Renamed",
		"status": "active",
	})
	assert.Equal(t, http.StatusOK, update.StatusCode)

	del := f.do(t, http.MethodDelete, "/api/v1/admin/tenants/"+created.TenantID.String(), "", nil)
	assert.Equal(t, http.StatusOK, del.StatusCode)

	gone := f.do(t, http.MethodGet, "/api/v1/admin/tenants/"+created.TenantID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestTenantAdminBadID(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/admin/tenants/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
