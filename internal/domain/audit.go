package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task activity actions.
const (
	ActionTaskCreated = "task.created"
	ActionTaskUpdated = "task.updated"
	ActionTaskMoved   = "task.moved"
	ActionTaskDeleted = "task.deleted"
)

// AuditEntry records one change to a task. Entries outlive the task so a
// deleted card keeps its history.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	TaskID    uuid.UUID      `json:"task_id"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewAuditEntry(task *Task, actorID uuid.UUID, action string, details map[string]any) *AuditEntry {
	if details == nil {
		details = map[string]any{}
	}
	return &AuditEntry{
		ID:        uuid.New(),
		TenantID:  task.TenantID,
		ProjectID: task.ProjectID,
		TaskID:    task.ID,
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	}
}

type AuditRepository interface {
	Record(ctx context.Context, entry *AuditEntry) error
	// ListByTask returns the newest entries first.
	ListByTask(ctx context.Context, tenantID, taskID uuid.UUID, limit int) ([]*AuditEntry, error)
}
