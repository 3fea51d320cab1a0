package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardsync/internal/domain"
)

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, tenant_id, name, description, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.TenantID, p.Name, p.Description, p.CreatedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Create: %w", err)
	}

	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project

	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, created_by, created_at
		 FROM projects WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("projectRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("projectRepo.GetByID: %w", err)
	}

	return &p, nil
}

func (r *ProjectRepo) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, description, created_by, created_at
		 FROM projects WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.List: %w", err)
	}
	defer rows.Close()

	projects := []*domain.Project{}
	for rows.Next() {
		var p domain.Project

		err = rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("projectRepo.List: scan: %w", err)
		}
		projects = append(projects, &p)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("projectRepo.List: rows: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM projects WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("projectRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

// --- Members ---

// AddMember grants a user access to a project. Re-adding an existing member is a no-op.
func (r *ProjectRepo) AddMember(ctx context.Context, tenantID uuid.UUID, m *domain.ProjectMember) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, added_at)
		 SELECT p.id, u.id, $4
		 FROM projects p JOIN users u ON u.tenant_id = p.tenant_id
		 WHERE p.tenant_id = $1 AND p.id = $2 AND u.id = $3
		 ON CONFLICT (project_id, user_id) DO NOTHING`,
		tenantID, m.ProjectID, m.UserID, m.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.AddMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already a member or the project/user is outside the tenant.
		ok, err := r.IsMember(ctx, tenantID, m.ProjectID, m.UserID)
		if err != nil {
			return fmt.Errorf("projectRepo.AddMember: %w", err)
		}
		if !ok {
			return fmt.Errorf("projectRepo.AddMember: %w", domain.ErrNotFound)
		}
	}

	return nil
}

func (r *ProjectRepo) IsMember(ctx context.Context, tenantID, projectID, userID uuid.UUID) (bool, error) {
	var ok bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM project_members m
		     JOIN projects p ON p.id = m.project_id
		     WHERE p.tenant_id = $1 AND m.project_id = $2 AND m.user_id = $3
		 )`,
		tenantID, projectID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("projectRepo.IsMember: %w", err)
	}

	return ok, nil
}
