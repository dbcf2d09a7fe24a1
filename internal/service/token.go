package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

// TokenType distinguishes the two token kinds. Presenting one where the other
// is required is an authentication error.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload. TenantCode is empty for system users.
type Claims struct {
	UserID     string         `json:"userId"`
	Email      string         `json:"email"`
	Role       model.UserRole `json:"role"`
	TenantCode string         `json:"tenantCode,omitempty"`
	Type       TokenType      `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokenService signs and verifies access/refresh tokens with separate
// HMAC-SHA256 secrets per kind.
type TokenService struct {
	secret           []byte
	refreshSecret    []byte
	expiresIn        time.Duration
	refreshExpiresIn time.Duration
}

func NewTokenService(secret, refreshSecret string, expiresIn, refreshExpiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:           []byte(secret),
		refreshSecret:    []byte(refreshSecret),
		expiresIn:        expiresIn,
		refreshExpiresIn: refreshExpiresIn,
	}
}

// GenerateTokenPair issues an access and a refresh token for the same
// identity.
func (s *TokenService) GenerateTokenPair(userID, email string, role model.UserRole, tenantCode string) (*TokenPair, error) {
	accessToken, err := s.sign(userID, email, role, tenantCode, TokenTypeAccess, s.secret, s.expiresIn)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sign(userID, email, role, tenantCode, TokenTypeRefresh, s.refreshSecret, s.refreshExpiresIn)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.expiresIn.Seconds()),
	}, nil
}

func (s *TokenService) sign(userID, email string, role model.UserRole, tenantCode string, kind TokenType, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Email:      email,
		Role:       role,
		TenantCode: tenantCode,
		Type:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccessToken validates signature, expiry and token type. A refresh
// token presented here is rejected.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return verify(token, s.secret, TokenTypeAccess)
}

// VerifyRefreshToken is the refresh-flow counterpart of VerifyAccessToken.
func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return verify(token, s.refreshSecret, TokenTypeRefresh)
}

func verify(token string, secret []byte, want TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, model.ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, model.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Type != want {
		return nil, model.ErrInvalidToken
	}
	return claims, nil
}
