package permissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenops/backoffice/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed access to the permission catalog.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

const selectPermissions = `SELECT id, name, description, category, parent_id FROM permissions`

// ListAll returns the whole catalog ordered by name.
func (r *Repository) ListAll(ctx context.Context) ([]Permission, error) {
	return r.list(ctx, selectPermissions+` ORDER BY lower(name)`)
}

// ListByCategory returns the permissions of one category ordered by name.
func (r *Repository) ListByCategory(ctx context.Context, category Category) ([]Permission, error) {
	return r.list(ctx, selectPermissions+` WHERE category = $1 ORDER BY lower(name)`, string(category))
}

// LoadCatalog reads and indexes the full catalog.
func (r *Repository) LoadCatalog(ctx context.Context) (*Catalog, error) {
	perms, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(perms)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]Permission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("permissions: list: %w", err)
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var (
			p        Permission
			category string
			parentID *uuid.UUID
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &category, &parentID); err != nil {
			return nil, fmt.Errorf("permissions: scan: %w", err)
		}
		p.Category = Category(category)
		p.ParentID = parentID
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permissions: rows: %w", err)
	}
	return out, nil
}

// Upsert inserts the permissions or refreshes their attributes, parents
// first, inside one transaction.
func (r *Repository) Upsert(ctx context.Context, perms []Permission) error {
	catalog, err := NewCatalog(perms)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range topological(catalog) {
			_, err := tx.Exec(ctx, `
				INSERT INTO permissions (id, name, description, category, parent_id)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET name = EXCLUDED.name,
				    description = EXCLUDED.description,
				    category = EXCLUDED.category,
				    parent_id = EXCLUDED.parent_id`,
				p.ID, p.Name, p.Description, string(p.Category), p.ParentID)
			if err != nil {
				return fmt.Errorf("permissions: upsert %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

func topological(c *Catalog) []Permission {
	out := make([]Permission, 0, c.Len())
	queue := c.Roots()
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		out = append(out, p)
		queue = append(queue, c.ChildrenOf(p.ID)...)
	}
	return out
}
