package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

// OnboardStore is the registry surface used by onboarding and provisioning.
type OnboardStore interface {
	CreateWithDataSource(ctx context.Context, tenant *model.Tenant, datasourceURL string) error
	GetByCode(ctx context.Context, code string) (*model.Tenant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TenantStatus, provisioned bool) error
	CreateProvisioningLog(ctx context.Context, tenantID uuid.UUID, step, status string, details interface{}) error
}

// Provisioner runs the asynchronous part of onboarding.
type Provisioner interface {
	QueueForProvisioning(job ProvisionJob)
}

// OnboardService registers a new medical center: it creates the tenant and
// datasource rows synchronously and queues schema creation, migration and
// seeding for the background provisioning worker.
type OnboardService struct {
	repo        OnboardStore
	provisioner Provisioner
	tenantDSN   string // base DSN of the tenant database cluster
}

func NewOnboardService(repo OnboardStore, provisioner Provisioner, tenantDSN string) *OnboardService {
	return &OnboardService{repo: repo, provisioner: provisioner, tenantDSN: tenantDSN}
}

type OnboardRequest struct {
	MedicalCenterName string `json:"medicalCenterName"`
	Address           string `json:"address"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
}

type OnboardResult struct {
	TenantID   uuid.UUID          `json:"tenantId"`
	TenantCode string             `json:"tenantCode"`
	Status     model.TenantStatus `json:"status"`
}

// Onboard validates the request, reserves a tenant code and datasource URL,
// and hands the rest to the provisioning worker. The tenant stays in status
// "provisioning" until the worker finishes.
func (s *OnboardService) Onboard(ctx context.Context, req OnboardRequest) (*OnboardResult, error) {
	if err := validateOnboardRequest(req); err != nil {
		return nil, err
	}

	code := GenerateTenantCode(req.MedicalCenterName)
	if _, err := s.repo.GetByCode(ctx, code); err == nil {
		return nil, model.ErrCodeTaken
	} else if !errors.Is(err, model.ErrTenantNotFound) {
		return nil, err
	}

	schema := GenerateSchemaName(code)
	url := buildTenantURL(s.tenantDSN, schema)

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	tenant := &model.Tenant{
		Code:   code,
		Name:   req.MedicalCenterName,
		Status: model.TenantStatusProvisioning,
	}
	if err := s.repo.CreateWithDataSource(ctx, tenant, url); err != nil {
		log.Error().Err(err).Str("tenant_code", code).Msg("Failed to create tenant")
		return nil, err
	}

	s.provisioner.QueueForProvisioning(ProvisionJob{
		Tenant: tenant,
		Schema: schema,
		URL:    url,
		Owner: model.User{
			Email:        req.Email,
			PasswordHash: string(passwordHash),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         model.RoleDoctor,
		},
		CenterName: req.MedicalCenterName,
		Address:    req.Address,
	})

	log.Info().Str("tenant_code", code).Str("tenant_id", tenant.ID.String()).Msg("Tenant queued for provisioning")
	return &OnboardResult{
		TenantID:   tenant.ID,
		TenantCode: tenant.Code,
		Status:     tenant.Status,
	}, nil
}

func validateOnboardRequest(req OnboardRequest) error {
	if req.MedicalCenterName == "" {
		return errors.New("medical center name is required")
	}
	if req.Email == "" {
		return errors.New("email is required")
	}
	if !isValidEmail(req.Email) {
		return errors.New("invalid email format")
	}
	if len(req.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if req.FirstName == "" || req.LastName == "" {
		return errors.New("owner first and last name are required")
	}
	return nil
}

// isValidEmail performs a basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return false
	}
	return true
}

// GenerateTenantCode derives a stable tenant code from the organization name:
// the normalized name plus a short random suffix.
func GenerateTenantCode(organizationName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(organizationName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String() + "-" + uuid.NewString()[:6]
}

// GenerateSchemaName maps a tenant code to its Postgres schema name.
func GenerateSchemaName(tenantCode string) string {
	return strings.ReplaceAll(tenantCode, "-", "_")
}

// buildTenantURL appends the schema selector to the tenant cluster DSN.
func buildTenantURL(baseDSN, schema string) string {
	if strings.Contains(baseDSN, "?") {
		return baseDSN + "&search_path=" + schema
	}
	return baseDSN + "?search_path=" + schema
}
