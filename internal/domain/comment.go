package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	TaskID    uuid.UUID `json:"task_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func NewComment(tenantID, taskID, authorID uuid.UUID, body string) (*Comment, error) {
	if taskID == uuid.Nil {
		return nil, required("comment", "task ID")
	}
	if strings.TrimSpace(body) == "" {
		return nil, required("comment", "body")
	}
	return &Comment{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TaskID:    taskID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now(),
	}, nil
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	ListByTask(ctx context.Context, tenantID, taskID uuid.UUID) ([]*Comment, error)
}
