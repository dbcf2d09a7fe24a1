package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/store"
	"github.com/caremesh-solutions/caremesh-backend/internal/tenantpool"
)

const bcryptCost = 12

// Directory is the slice of the tenant repository the auth service needs.
type Directory interface {
	GetByCode(ctx context.Context, code string) (*model.Tenant, error)
	GetActiveByCode(ctx context.Context, code string) (*model.Tenant, error)
	GetSystemUserByEmail(ctx context.Context, email string) (*model.SystemUser, error)
	GetSystemUserByID(ctx context.Context, id uuid.UUID) (*model.SystemUser, error)
	SetSystemUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// ConnPool is the acquire/release surface of the tenant connection pool.
type ConnPool interface {
	Get(ctx context.Context, url string) (tenantpool.Conn, error)
	Release(url string)
}

// AuthService authenticates tenant users (against their tenant schema,
// through the pool) and system users (against the registry).
type AuthService struct {
	repo   Directory
	pool   ConnPool
	tokens *TokenService
}

func NewAuthService(repo Directory, pool ConnPool, tokens *TokenService) *AuthService {
	return &AuthService{repo: repo, pool: pool, tokens: tokens}
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantCode string `json:"tenantCode,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthUser struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Role      model.UserRole `json:"role"`
}

type AuthResult struct {
	User       AuthUser   `json:"user"`
	Tokens     *TokenPair `json:"tokens"`
	TenantCode string     `json:"tenantCode,omitempty"`
}

// Login authenticates by email and password. With a tenant code the user is
// looked up inside that tenant's schema; without one, against the registry's
// system users. Only ACTIVE tenants may log in.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if req.TenantCode != "" {
		return s.loginTenantUser(ctx, req)
	}
	return s.loginSystemUser(ctx, req)
}

func (s *AuthService) loginTenantUser(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	tenant, err := s.repo.GetActiveByCode(ctx, req.TenantCode)
	if err != nil {
		return nil, err
	}
	if tenant.DataSource == nil || tenant.DataSource.URL == "" {
		return nil, fmt.Errorf("%w: tenant %s has no datasource url", model.ErrDatasourceUnreachable, tenant.Code)
	}

	conn, err := s.pool.Get(ctx, tenant.DataSource.URL)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(tenant.DataSource.URL)

	q, ok := conn.(store.TenantQuerier)
	if !ok {
		return nil, fmt.Errorf("tenant connection does not support queries")
	}

	user, err := store.GetTenantUserByEmail(ctx, q, req.Email)
	if err != nil || user.IsArchived {
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	tokens, err := s.tokens.GenerateTokenPair(user.ID.String(), user.Email, user.Role, tenant.Code)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("email", user.Email).Str("tenant_code", tenant.Code).Msg("Tenant user authenticated")
	return &AuthResult{
		User: AuthUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      user.Role,
		},
		Tokens:     tokens,
		TenantCode: tenant.Code,
	}, nil
}

func (s *AuthService) loginSystemUser(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	user, err := s.repo.GetSystemUserByEmail(ctx, req.Email)
	if err != nil || user.IsArchived {
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	tokens, err := s.tokens.GenerateTokenPair(user.ID.String(), user.Email, user.Role, "")
	if err != nil {
		return nil, err
	}

	log.Debug().Str("email", user.Email).Msg("System user authenticated")
	return &AuthResult{
		User: AuthUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      user.Role,
		},
		Tokens: tokens,
	}, nil
}

// Refresh verifies a refresh token and mints a fresh token pair for the same
// identity.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	return s.tokens.GenerateTokenPair(claims.UserID, claims.Email, claims.Role, claims.TenantCode)
}

// Register sets the password on a pre-provisioned system user (public-screen
// flow: the user record is created by an administrator first).
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	user, err := s.repo.GetSystemUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetSystemUserPassword(ctx, user.ID, string(hash)); err != nil {
		return nil, err
	}

	tokens, err := s.tokens.GenerateTokenPair(user.ID.String(), user.Email, user.Role, "")
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User: AuthUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      user.Role,
		},
		Tokens: tokens,
	}, nil
}

// ValidateTenantUser is the post-auth check for tenant-bound requests. It
// runs on the connection already acquired for the request.
func (s *AuthService) ValidateTenantUser(ctx context.Context, q store.TenantQuerier, userID uuid.UUID) (*model.User, error) {
	user, err := store.GetTenantUserByID(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if user.IsArchived {
		return nil, model.ErrUserArchived
	}
	return user, nil
}

// ValidateSystemUser is the post-auth check for tenant-unbound requests.
func (s *AuthService) ValidateSystemUser(ctx context.Context, userID uuid.UUID) (*model.SystemUser, error) {
	user, err := s.repo.GetSystemUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsArchived {
		return nil, model.ErrUserArchived
	}
	return user, nil
}
