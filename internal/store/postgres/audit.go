package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardsync/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Record(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("auditRepo.Record: marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO task_activity (id, tenant_id, project_id, task_id, actor_id, action, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TenantID, entry.ProjectID, entry.TaskID, entry.ActorID,
		entry.Action, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Record: %w", err)
	}

	return nil
}

func (r *AuditRepo) ListByTask(ctx context.Context, tenantID, taskID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, project_id, task_id, actor_id, action, details, created_at
		 FROM task_activity WHERE tenant_id = $1 AND task_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		tenantID, taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListByTask: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		var details []byte

		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.ProjectID, &e.TaskID, &e.ActorID,
			&e.Action, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("auditRepo.ListByTask: scan: %w", err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("auditRepo.ListByTask: unmarshal details: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditRepo.ListByTask: rows: %w", err)
	}

	return entries, nil
}
