package model

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of a tenant in the registry.
type TenantStatus string

const (
	TenantStatusProvisioning TenantStatus = "provisioning"
	TenantStatusActive       TenantStatus = "active"
	TenantStatusInactive     TenantStatus = "inactive"
	TenantStatusSuspended    TenantStatus = "suspended"
	TenantStatusError        TenantStatus = "error"
)

// Tenant represents a row of the registry tenants table. Tenants are never
// hard-deleted; DeletedAt marks the soft delete.
type Tenant struct {
	ID          uuid.UUID    `json:"id"`
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Status      TenantStatus `json:"status"`
	Provisioned bool         `json:"provisioned"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
	DataSource  *DataSource  `json:"data_source,omitempty"`
}

// DataSource is the connection descriptor for a tenant's schema. The URL is
// plaintext only in memory; at rest it is stored AES-GCM encrypted.
type DataSource struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	URL          string    `json:"-"`
	EncryptedURL []byte    `json:"encrypted_url"`
	URLNonce     []byte    `json:"url_nonce"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
