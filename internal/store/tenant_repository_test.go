package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh-solutions/caremesh-backend/internal/crypto"
	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

// memRedis is an in-process RedisClient so the integration tests only need a
// database.
type memRedis struct {
	values map[string]string
}

func newMemRedis() *memRedis { return &memRedis{values: map[string]string{}} }

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := m.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (m *memRedis) SetEx(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	}
	return redis.NewStatusCmd(ctx)
}

func (m *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.values, key)
	}
	return redis.NewIntCmd(ctx)
}

func (m *memRedis) Close() error { return nil }

// newTestRepository connects to the database named by TEST_REGISTRY_DSN, or
// skips. The schema must already be migrated.
func newTestRepository(t *testing.T) *TenantRepository {
	t.Helper()
	dsn := os.Getenv("TEST_REGISTRY_DSN")
	if dsn == "" {
		t.Skip("TEST_REGISTRY_DSN not set; skipping registry integration tests")
	}

	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	cipher, err := crypto.New(key)
	require.NoError(t, err)

	repo, err := NewTenantRepository(dsn, "localhost:6379", cipher)
	require.NoError(t, err)
	repo.redis = newMemRedis()
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createTestTenant(t *testing.T, repo *TenantRepository, code string) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{
		Code:   code,
		Name:   "Test Clinic",
		Status: model.TenantStatusProvisioning,
	}
	url := "postgres://localhost:5432/tenants?search_path=" + code
	require.NoError(t, repo.CreateWithDataSource(context.Background(), tenant, url))
	t.Cleanup(func() { repo.Delete(context.Background(), tenant.ID) })
	return tenant
}

func TestCreateAndGetByCode(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tenant := createTestTenant(t, repo, "itest-create")

	got, err := repo.GetByCode(ctx, tenant.Code)
	assert.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
	assert.Equal(t, model.TenantStatusProvisioning, got.Status)
	require.NotNil(t, got.DataSource)
	assert.Equal(t, tenant.DataSource.URL, got.DataSource.URL, "URL must round-trip through encryption")

	// Second lookup is served from cache and must decrypt identically.
	cached, err := repo.GetByCode(ctx, tenant.Code)
	assert.NoError(t, err)
	assert.Equal(t, got.DataSource.URL, cached.DataSource.URL)
}

func TestGetByCodeNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetByCode(context.Background(), "itest-ghost")
	assert.ErrorIs(t, err, model.ErrTenantNotFound)
}

func TestGetActiveByCode(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tenant := createTestTenant(t, repo, "itest-active")

	_, err := repo.GetActiveByCode(ctx, tenant.Code)
	assert.ErrorIs(t, err, model.ErrTenantNotActive, "provisioning tenants must not resolve on the login path")

	require.NoError(t, repo.UpdateStatus(ctx, tenant.ID, model.TenantStatusActive, true))

	got, err := repo.GetActiveByCode(ctx, tenant.Code)
	assert.NoError(t, err)
	assert.Equal(t, model.TenantStatusActive, got.Status)
	assert.True(t, got.Provisioned)
}

func TestUpdateStatusInvalidatesCache(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tenant := createTestTenant(t, repo, "itest-cache")

	got, err := repo.GetByCode(ctx, tenant.Code)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusProvisioning, got.Status)

	require.NoError(t, repo.UpdateStatus(ctx, tenant.ID, model.TenantStatusSuspended, false))

	got, err = repo.GetByCode(ctx, tenant.Code)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusSuspended, got.Status, "stale cache entry survived a status change")
}

func TestRotateDataSourceURL(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tenant := createTestTenant(t, repo, "itest-rotate")
	newURL := "postgres://replica:5432/tenants?search_path=itest-rotate"

	require.NoError(t, repo.RotateDataSourceURL(ctx, tenant.ID, newURL))

	got, err := repo.GetByCode(ctx, tenant.Code)
	require.NoError(t, err)
	require.NotNil(t, got.DataSource)
	assert.Equal(t, newURL, got.DataSource.URL)
}

func TestSoftDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tenant := createTestTenant(t, repo, "itest-delete")

	require.NoError(t, repo.Delete(ctx, tenant.ID))

	_, err := repo.GetByCode(ctx, tenant.Code)
	assert.ErrorIs(t, err, model.ErrTenantNotFound)

	_, err = repo.GetByID(ctx, tenant.ID)
	assert.ErrorIs(t, err, model.ErrTenantNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, tenant.ID), model.ErrTenantNotFound)
}

func TestList(t *testing.T) {
	repo := newTestRepository(t)

	createTestTenant(t, repo, "itest-list-a")
	createTestTenant(t, repo, "itest-list-b")

	tenants, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, len(tenants), 2)
}
