package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the kanban column a task belongs to.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

// TaskStatuses lists every column in board order.
var TaskStatuses = []TaskStatus{ //nolint:gochecknoglobals // fixed column order
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusReview,
	TaskStatusDone,
}

// Valid reports whether s is one of the known columns.
// Any column may be dragged to any other, so there is no transition table.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	default:
		return false
	}
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	default:
		return false
	}
}

type Task struct {
	ID          uuid.UUID    `json:"id"`
	TenantID    uuid.UUID    `json:"tenant_id"`
	ProjectID   uuid.UUID    `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Tags        []string     `json:"tags"`
	Position    int          `json:"position"`
	AssignedTo  *uuid.UUID   `json:"assigned_to,omitempty"`
	CreatedBy   uuid.UUID    `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTask creates a Task in the TODO column with validated fields.
func NewTask(tenantID, projectID, createdBy uuid.UUID, title, description string, priority TaskPriority) (*Task, error) {
	if tenantID == uuid.Nil {
		return nil, required("task", "tenant ID")
	}
	if projectID == uuid.Nil {
		return nil, required("task", "project ID")
	}
	if strings.TrimSpace(title) == "" {
		return nil, required("task", "title")
	}
	if priority == "" {
		priority = TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}
	now := time.Now()
	return &Task{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      TaskStatusTodo,
		Priority:    priority,
		Tags:        []string{},
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Task, error)
	ListByProject(ctx context.Context, tenantID, projectID uuid.UUID) ([]*Task, error)
	ListByStatus(ctx context.Context, tenantID, projectID uuid.UUID, status TaskStatus) ([]*Task, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status TaskStatus) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
