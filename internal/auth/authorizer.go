package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
)

// Access is the kind of project access being requested.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// ErrForbidden is returned when a principal may not access a project.
// It wraps domain.ErrForbidden so callers may test for either.
var ErrForbidden = fmt.Errorf("auth: %w", domain.ErrForbidden)

// Authorizer answers whether a principal may read or write a project's tasks.
// Admins reach every project of their tenant; everyone else needs membership.
// Viewers never write.
type Authorizer struct {
	projects domain.ProjectRepository
	tasks    domain.TaskRepository
}

func NewAuthorizer(projects domain.ProjectRepository, tasks domain.TaskRepository) *Authorizer {
	return &Authorizer{projects: projects, tasks: tasks}
}

// AuthorizeProject returns nil when p may access the project, ErrForbidden
// when it may not (including when the project is outside p's tenant), or the
// underlying repository error.
func (a *Authorizer) AuthorizeProject(ctx context.Context, p Principal, projectID uuid.UUID, access Access) error {
	if p.TenantID == uuid.Nil || p.UserID == uuid.Nil {
		return fmt.Errorf("auth.AuthorizeProject: %w", ErrForbidden)
	}
	if access == AccessWrite && p.Role == domain.RoleViewer {
		return fmt.Errorf("auth.AuthorizeProject: viewer cannot write: %w", ErrForbidden)
	}

	if _, err := a.projects.GetByID(ctx, p.TenantID, projectID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("auth.AuthorizeProject: %w", ErrForbidden)
		}
		return fmt.Errorf("auth.AuthorizeProject: %w", err)
	}

	if p.Role == domain.RoleAdmin {
		return nil
	}

	ok, err := a.projects.IsMember(ctx, p.TenantID, projectID, p.UserID)
	if err != nil {
		return fmt.Errorf("auth.AuthorizeProject: %w", err)
	}
	if !ok {
		return fmt.Errorf("auth.AuthorizeProject: not a member: %w", ErrForbidden)
	}
	return nil
}

// AuthorizeTask authorizes access to the project owning taskID and returns
// the task.
func (a *Authorizer) AuthorizeTask(ctx context.Context, p Principal, taskID uuid.UUID, access Access) (*domain.Task, error) {
	task, err := a.tasks.GetByID(ctx, p.TenantID, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("auth.AuthorizeTask: %w", ErrForbidden)
		}
		return nil, fmt.Errorf("auth.AuthorizeTask: %w", err)
	}

	if err := a.AuthorizeProject(ctx, p, task.ProjectID, access); err != nil {
		return nil, fmt.Errorf("auth.AuthorizeTask: %w", err)
	}
	return task, nil
}
