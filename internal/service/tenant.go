package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

// TenantAdminStore is the registry surface used by administrative tenant
// operations.
type TenantAdminStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	List(ctx context.Context) ([]*model.Tenant, error)
	Update(ctx context.Context, tenant *model.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	RotateDataSourceURL(ctx context.Context, tenantID uuid.UUID, url string) error
}

// TenantService exposes administrative tenant operations: status changes,
// renames, soft deletes and datasource URL rotation.
type TenantService struct {
	repo TenantAdminStore
}

func NewTenantService(repo TenantAdminStore) *TenantService {
	return &TenantService{repo: repo}
}

// GetTenant retrieves a tenant by ID.
func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrTenantNotFound) {
			log.Error().Err(err).Str("tenant_id", id.String()).Msg("Failed to get tenant")
		}
		return nil, err
	}
	return tenant, nil
}

// ListTenants returns all non-deleted tenants.
func (s *TenantService) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return s.repo.List(ctx)
}

type UpdateTenantRequest struct {
	Name          string             `json:"name"`
	Status        model.TenantStatus `json:"status"`
	DatasourceURL string             `json:"datasourceUrl,omitempty"`
}

// UpdateTenant updates a tenant's name and lifecycle status, and rotates the
// datasource URL when one is supplied.
func (s *TenantService) UpdateTenant(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*model.Tenant, error) {
	if err := validateUpdateTenantRequest(req); err != nil {
		return nil, err
	}

	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tenant.Name = req.Name
	tenant.Status = req.Status
	if err := s.repo.Update(ctx, tenant); err != nil {
		log.Error().Err(err).Str("tenant_id", id.String()).Msg("Failed to update tenant")
		return nil, err
	}

	if req.DatasourceURL != "" {
		if err := s.repo.RotateDataSourceURL(ctx, id, req.DatasourceURL); err != nil {
			log.Error().Err(err).Str("tenant_id", id.String()).Msg("Failed to rotate datasource url")
			return nil, err
		}
	}
	return tenant, nil
}

// DeleteTenant soft deletes a tenant.
func (s *TenantService) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, model.ErrTenantNotFound) {
			log.Error().Err(err).Str("tenant_id", id.String()).Msg("Failed to delete tenant")
		}
		return err
	}
	return nil
}

func validateUpdateTenantRequest(req UpdateTenantRequest) error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	switch req.Status {
	case model.TenantStatusActive, model.TenantStatusInactive, model.TenantStatusSuspended,
		model.TenantStatusProvisioning, model.TenantStatusError:
		return nil
	default:
		return errors.New("invalid status")
	}
}
