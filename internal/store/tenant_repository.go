package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

func tenantCacheKey(code string) string {
	return fmt.Sprintf("tenant:code:%s", code)
}

// CreateWithDataSource inserts a tenant and its datasource in one
// transaction. The datasource URL is encrypted before it touches the
// database; the plaintext stays on the model only.
func (r *TenantRepository) CreateWithDataSource(ctx context.Context, tenant *model.Tenant, datasourceURL string) error {
	tenant.ID = uuid.New()
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = tenant.CreatedAt

	encryptedURL, nonce, err := r.cipher.Encrypt(datasourceURL)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO tenants (id, code, name, status, provisioned, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, query,
		tenant.ID, tenant.Code, tenant.Name, tenant.Status, tenant.Provisioned,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return err
	}

	ds := &model.DataSource{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		URL:          datasourceURL,
		EncryptedURL: encryptedURL,
		URLNonce:     nonce,
		CreatedAt:    tenant.CreatedAt,
		UpdatedAt:    tenant.CreatedAt,
	}
	query = `INSERT INTO data_sources (id, tenant_id, url_encrypted, url_nonce, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = tx.ExecContext(ctx, query, ds.ID, ds.TenantID, ds.EncryptedURL, ds.URLNonce, ds.CreatedAt, ds.UpdatedAt)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	tenant.DataSource = ds
	r.redis.Del(ctx, tenantCacheKey(tenant.Code))
	return nil
}

const tenantColumns = `t.id, t.code, t.name, t.status, t.provisioned, t.created_at, t.updated_at, t.deleted_at,
       d.id, d.url_encrypted, d.url_nonce, d.created_at, d.updated_at`

func (r *TenantRepository) scanTenant(row *sql.Row) (*model.Tenant, error) {
	tenant := &model.Tenant{}
	var (
		dsID              uuid.NullUUID
		dsEncrypted       []byte
		dsNonce           []byte
		dsCreated, dsUpds sql.NullTime
	)
	err := row.Scan(
		&tenant.ID, &tenant.Code, &tenant.Name, &tenant.Status, &tenant.Provisioned,
		&tenant.CreatedAt, &tenant.UpdatedAt, &tenant.DeletedAt,
		&dsID, &dsEncrypted, &dsNonce, &dsCreated, &dsUpds,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	if dsID.Valid {
		tenant.DataSource = &model.DataSource{
			ID:           dsID.UUID,
			TenantID:     tenant.ID,
			EncryptedURL: dsEncrypted,
			URLNonce:     dsNonce,
			CreatedAt:    dsCreated.Time,
			UpdatedAt:    dsUpds.Time,
		}
		if err := r.decryptDataSource(tenant.DataSource); err != nil {
			return nil, err
		}
	}
	return tenant, nil
}

func (r *TenantRepository) decryptDataSource(ds *model.DataSource) error {
	if len(ds.EncryptedURL) == 0 {
		return nil
	}
	url, err := r.cipher.Decrypt(ds.EncryptedURL, ds.URLNonce)
	if err != nil {
		return fmt.Errorf("decrypt datasource url: %w", err)
	}
	ds.URL = url
	return nil
}

// GetByID retrieves a tenant and its datasource by ID.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + `
              FROM tenants t
              LEFT JOIN data_sources d ON d.tenant_id = t.id
              WHERE t.id = $1 AND t.deleted_at IS NULL`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetByCode resolves a tenant code to tenant metadata and datasource URL.
// Lookups are cached; every write path invalidates the cache entry. Callers
// must inspect Status themselves: an inactive tenant is still found.
func (r *TenantRepository) GetByCode(ctx context.Context, code string) (*model.Tenant, error) {
	key := tenantCacheKey(code)
	cached, err := r.redis.Get(ctx, key).Result()
	if err == nil {
		tenant := &model.Tenant{}
		if err := json.Unmarshal([]byte(cached), tenant); err == nil {
			if tenant.DataSource != nil {
				if err := r.decryptDataSource(tenant.DataSource); err == nil {
					return tenant, nil
				}
			} else {
				return tenant, nil
			}
		}
	}

	query := `SELECT ` + tenantColumns + `
              FROM tenants t
              LEFT JOIN data_sources d ON d.tenant_id = t.id
              WHERE t.code = $1 AND t.deleted_at IS NULL`
	tenant, err := r.scanTenant(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tenant); err == nil {
		r.redis.SetEx(ctx, key, data, tenantCacheTTL)
	}
	return tenant, nil
}

// GetActiveByCode is the login-path variant: only ACTIVE tenants resolve.
func (r *TenantRepository) GetActiveByCode(ctx context.Context, code string) (*model.Tenant, error) {
	tenant, err := r.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if tenant.Status != model.TenantStatusActive {
		return nil, model.ErrTenantNotActive
	}
	return tenant, nil
}

// List returns all non-deleted tenants, newest first, without datasources.
func (r *TenantRepository) List(ctx context.Context) ([]*model.Tenant, error) {
	query := `SELECT id, code, name, status, provisioned, created_at, updated_at, deleted_at
              FROM tenants WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		tenant := &model.Tenant{}
		if err := rows.Scan(&tenant.ID, &tenant.Code, &tenant.Name, &tenant.Status,
			&tenant.Provisioned, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.DeletedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// Update updates a tenant's name and status.
func (r *TenantRepository) Update(ctx context.Context, tenant *model.Tenant) error {
	query := `UPDATE tenants SET name = $2, status = $3, provisioned = $4, updated_at = now()
              WHERE id = $1 AND deleted_at IS NULL
              RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Status, tenant.Provisioned,
	).Scan(&tenant.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	r.redis.Del(ctx, tenantCacheKey(tenant.Code))
	return nil
}

// UpdateStatus flips a tenant's lifecycle status and provisioned flag.
func (r *TenantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TenantStatus, provisioned bool) error {
	query := `UPDATE tenants SET status = $2, provisioned = $3, updated_at = now()
              WHERE id = $1 AND deleted_at IS NULL
              RETURNING code`
	var code string
	err := r.db.QueryRowContext(ctx, query, id, status, provisioned).Scan(&code)
	if err == sql.ErrNoRows {
		return model.ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	r.redis.Del(ctx, tenantCacheKey(code))
	return nil
}

// RotateDataSourceURL replaces a tenant's datasource URL. Administrative and
// rare; the pool picks up the new URL on the next directory lookup.
func (r *TenantRepository) RotateDataSourceURL(ctx context.Context, tenantID uuid.UUID, url string) error {
	encryptedURL, nonce, err := r.cipher.Encrypt(url)
	if err != nil {
		return err
	}
	query := `UPDATE data_sources SET url_encrypted = $2, url_nonce = $3, updated_at = now()
              WHERE tenant_id = $1`
	result, err := r.db.ExecContext(ctx, query, tenantID, encryptedURL, nonce)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return model.ErrTenantNotFound
	}

	var code string
	if err := r.db.QueryRowContext(ctx, `SELECT code FROM tenants WHERE id = $1`, tenantID).Scan(&code); err == nil {
		r.redis.Del(ctx, tenantCacheKey(code))
	}
	return nil
}

// Delete performs a soft delete on a tenant.
func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tenants SET deleted_at = now(), updated_at = now()
              WHERE id = $1 AND deleted_at IS NULL
              RETURNING code`
	var code string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&code)
	if err == sql.ErrNoRows {
		return model.ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	r.redis.Del(ctx, tenantCacheKey(code))
	return nil
}

// CreateProvisioningLog appends an audit row for one onboarding step.
func (r *TenantRepository) CreateProvisioningLog(ctx context.Context, tenantID uuid.UUID, step, status string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	query := `INSERT INTO tenant_provisioning_logs (tenant_id, step, status, details, created_at)
              VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, tenantID, step, status, detailsJSON, time.Now())
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Str("step", step).Msg("Failed to write provisioning log")
	}
	return err
}
