package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
)

// TenantQuerier is the query surface of a pooled tenant connection.
// *pgxpool.Pool satisfies it; middleware and service tests inject fakes.
type TenantQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Queries below run inside a tenant schema, reached through the pooled
// connection acquired for the request. They take the querier explicitly
// because the connection's lifetime belongs to the request, not to a store.

const tenantUserColumns = `id, email, password_hash, first_name, last_name, role, is_owner, is_archived, created_at, updated_at`

func scanTenantUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Role, &user.IsOwner, &user.IsArchived, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetTenantUserByEmail finds a user inside the tenant schema by email.
func GetTenantUserByEmail(ctx context.Context, q TenantQuerier, email string) (*model.User, error) {
	query := `SELECT ` + tenantUserColumns + ` FROM users WHERE email = $1`
	return scanTenantUser(q.QueryRow(ctx, query, email))
}

// GetTenantUserByID finds a user inside the tenant schema by ID.
func GetTenantUserByID(ctx context.Context, q TenantQuerier, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + tenantUserColumns + ` FROM users WHERE id = $1`
	return scanTenantUser(q.QueryRow(ctx, query, id))
}

// ListMedicalCenters returns the organization records in the tenant schema.
func ListMedicalCenters(ctx context.Context, q TenantQuerier) ([]*model.MedicalCenter, error) {
	query := `SELECT id, name, address, created_at, updated_at FROM medical_centers ORDER BY created_at`
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var centers []*model.MedicalCenter
	for rows.Next() {
		center := &model.MedicalCenter{}
		if err := rows.Scan(&center.ID, &center.Name, &center.Address, &center.CreatedAt, &center.UpdatedAt); err != nil {
			return nil, err
		}
		centers = append(centers, center)
	}
	return centers, rows.Err()
}

// SeedTenant creates the initial medical center and its owner user inside a
// freshly migrated tenant schema.
func SeedTenant(ctx context.Context, q TenantQuerier, centerName, address string, owner *model.User) error {
	centerID := uuid.New()
	query := `INSERT INTO medical_centers (id, name, address, created_at, updated_at)
              VALUES ($1, $2, $3, now(), now())`
	if _, err := q.Exec(ctx, query, centerID, centerName, address); err != nil {
		return err
	}

	owner.ID = uuid.New()
	owner.IsOwner = true
	query = `INSERT INTO users (id, email, password_hash, first_name, last_name, role, is_owner, is_archived, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, false, now(), now())`
	_, err := q.Exec(ctx, query,
		owner.ID, owner.Email, owner.PasswordHash, owner.FirstName, owner.LastName, owner.Role, owner.IsOwner,
	)
	return err
}
