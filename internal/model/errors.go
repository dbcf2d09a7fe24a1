package model

import "errors"

var (
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrTenantNotActive       = errors.New("tenant is not active")
	ErrDatasourceUnreachable = errors.New("tenant datasource unreachable")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserArchived          = errors.New("user is archived")
	ErrInvalidToken          = errors.New("invalid token")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrCodeTaken             = errors.New("tenant code already exists")
)
