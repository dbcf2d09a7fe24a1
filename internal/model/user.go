package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole mirrors the role claim carried in tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	RoleConsultant UserRole = "CONSULTANT"
	RoleDoctor     UserRole = "DOCTOR"
	RoleStaff      UserRole = "STAFF"
)

// IsSystemRole reports whether the role is tenant-unbound. System users
// authenticate against the registry and carry no tenant code in their tokens.
func (r UserRole) IsSystemRole() bool {
	return r == RoleSuperAdmin || r == RoleConsultant
}

// SystemUser lives in the registry database (public-screen authentication).
type SystemUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         UserRole  `json:"role"`
	IsArchived   bool      `json:"is_archived"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User lives in a tenant schema and is reached through the pooled connection.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         UserRole  `json:"role"`
	IsOwner      bool      `json:"is_owner"`
	IsArchived   bool      `json:"is_archived"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MedicalCenter is the organization record inside a tenant schema.
type MedicalCenter struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
