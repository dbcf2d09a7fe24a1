package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

const systemUserColumns = `id, email, password_hash, first_name, last_name, role, is_archived, created_at, updated_at`

func scanSystemUser(row *sql.Row) (*model.SystemUser, error) {
	user := &model.SystemUser{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Role, &user.IsArchived, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetSystemUserByEmail finds a registry user for public-screen login.
func (r *TenantRepository) GetSystemUserByEmail(ctx context.Context, email string) (*model.SystemUser, error) {
	query := `SELECT ` + systemUserColumns + ` FROM system_users WHERE email = $1`
	return scanSystemUser(r.db.QueryRowContext(ctx, query, email))
}

// GetSystemUserByID finds a registry user for post-auth validation.
func (r *TenantRepository) GetSystemUserByID(ctx context.Context, id uuid.UUID) (*model.SystemUser, error) {
	query := `SELECT ` + systemUserColumns + ` FROM system_users WHERE id = $1`
	return scanSystemUser(r.db.QueryRowContext(ctx, query, id))
}

// SetSystemUserPassword stores a new password hash for a registry user.
func (r *TenantRepository) SetSystemUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE system_users SET password_hash = $2, updated_at = now() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
