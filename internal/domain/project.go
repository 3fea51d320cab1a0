package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewProject creates a Project with validated required fields.
func NewProject(tenantID, createdBy uuid.UUID, name, description string) (*Project, error) {
	if tenantID == uuid.Nil {
		return nil, required("project", "tenant ID")
	}
	if strings.TrimSpace(name) == "" {
		return nil, required("project", "name")
	}
	return &Project{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}, nil
}

// ProjectMember grants a user read/write access to one project's tasks.
type ProjectMember struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	AddedAt   time.Time `json:"added_at"`
}

type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Project, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Project, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	AddMember(ctx context.Context, tenantID uuid.UUID, m *ProjectMember) error
	IsMember(ctx context.Context, tenantID, projectID, userID uuid.UUID) (bool, error)
}
