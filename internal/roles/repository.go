package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenops/backoffice/internal/platform/db"
	"github.com/kitchenops/backoffice/internal/rbac"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PgRepository stores roles and grants in PostgreSQL.
type PgRepository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

const selectRoles = `SELECT id, name, owner_id, permissions_version, created_at, updated_at FROM roles`

func scanRole(row pgx.Row) (rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.Name, &role.OwnerID, &role.PermissionsVersion, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRole fetches a role by id.
func (r *PgRepository) GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, selectRoles+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, ErrRoleNotFound
		}
		return rbac.Role{}, fmt.Errorf("roles: get role: %w", err)
	}
	return role, nil
}

// ListRoles lists every role when all is set, otherwise the roles owned
// by owner.
func (r *PgRepository) ListRoles(ctx context.Context, owner *uuid.UUID, all bool) ([]rbac.Role, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if all {
		rows, err = r.db.Query(ctx, selectRoles+` ORDER BY name`)
	} else {
		rows, err = r.db.Query(ctx, selectRoles+` WHERE owner_id = $1 ORDER BY name`, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}
	defer rows.Close()
	out := []rbac.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("roles: scan role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// CreateRole inserts a role with no grants.
func (r *PgRepository) CreateRole(ctx context.Context, name string, owner *uuid.UUID) (rbac.Role, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return rbac.Role{}, err
	}
	role, err := scanRole(r.db.QueryRow(ctx, `
		INSERT INTO roles (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, owner_id, permissions_version, created_at, updated_at`,
		id, name, owner))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return rbac.Role{}, ErrDuplicateRole
		}
		return rbac.Role{}, fmt.Errorf("roles: create role: %w", err)
	}
	return role, nil
}

// FindByRole returns the permission ids granted to roleID.
func (r *PgRepository) FindByRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("roles: find grants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("roles: scan grants: %w", err)
	}
	return ids, nil
}

// ReplaceAll swaps the role's grants for ids in one transaction and bumps
// the grant version. With an expected version other than AnyVersion the
// swap only happens if the stored version still matches.
func (r *PgRepository) ReplaceAll(ctx context.Context, roleID uuid.UUID, ids []uuid.UUID, expectedVersion int64) (int64, error) {
	var version int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE roles
			SET permissions_version = permissions_version + 1, updated_at = now()
			WHERE id = $1 AND ($2::bigint < 0 OR permissions_version = $2)
			RETURNING permissions_version`, roleID, expectedVersion).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
				return fmt.Errorf("roles: check role: %w", err)
			}
			if !exists {
				return ErrRoleNotFound
			}
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("roles: bump version: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("roles: clear grants: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		raw := make([]string, len(ids))
		for i, id := range ids {
			raw[i] = id.String()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, unnest($2::text[])::uuid`, roleID, raw)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return ErrPermissionNotFound
			}
			return fmt.Errorf("roles: insert grants: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
