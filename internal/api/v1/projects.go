package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
)

type CreateProjectInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"255" doc:"Project name"`
		Description string `json:"description,omitempty" maxLength:"4000" doc:"Project description"`
	}
}

type CreateProjectOutput struct {
	Body *domain.Project
}

type ListProjectsOutput struct {
	Body []*domain.Project
}

type GetProjectInput struct {
	ID uuid.UUID `path:"id" doc:"Project ID"`
}

type GetProjectOutput struct {
	Body *domain.Project
}

type DeleteProjectInput struct {
	ID uuid.UUID `path:"id" doc:"Project ID"`
}

type AddMemberInput struct {
	ID   uuid.UUID `path:"id" doc:"Project ID"`
	Body struct {
		UserID uuid.UUID `json:"user_id" doc:"User to grant access"`
	}
}

type AddMemberOutput struct {
	Body *domain.ProjectMember
}

func RegisterProjectRoutes(api huma.API, store DataStore, authz Authorizer) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a new project",
		Tags:          []string{"Projects"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateProjectInput) (*CreateProjectOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if p.Role == domain.RoleViewer {
			return nil, huma.Error403Forbidden("viewers cannot create projects")
		}

		project, err := domain.NewProject(p.TenantID, p.UserID, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, validationError(err)
		}
		if err := store.Projects().Create(ctx, project); err != nil {
			return nil, huma.Error500InternalServerError("failed to create project", err)
		}

		// The creator can always see what they made.
		member := &domain.ProjectMember{ProjectID: project.ID, UserID: p.UserID, AddedAt: project.CreatedAt}
		if err := store.Projects().AddMember(ctx, p.TenantID, member); err != nil {
			return nil, huma.Error500InternalServerError("project created but failed to add creator", err)
		}

		return &CreateProjectOutput{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, _ *struct{}) (*ListProjectsOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		visible, err := visibleProjects(ctx, store, authz, p)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list projects", err)
		}

		return &ListProjectsOutput{Body: visible}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get a project by ID",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *GetProjectInput) (*GetProjectOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if err := authz.AuthorizeProject(ctx, p, input.ID, auth.AccessRead); err != nil {
			return nil, accessError(err)
		}

		project, err := store.Projects().GetByID(ctx, p.TenantID, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to get project", err)
		}

		return &GetProjectOutput{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete a project",
		Tags:          []string{"Projects"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteProjectInput) (*struct{}, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if p.Role != domain.RoleAdmin {
			return nil, huma.Error403Forbidden("admin role required")
		}

		if err := store.Projects().Delete(ctx, p.TenantID, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete project", err)
		}

		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-project-member",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/members",
		Summary:       "Grant a user access to a project",
		Tags:          []string{"Projects"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddMemberInput) (*AddMemberOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if p.Role != domain.RoleAdmin {
			return nil, huma.Error403Forbidden("admin role required")
		}

		if _, err := store.Users().GetByID(ctx, p.TenantID, input.Body.UserID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("user not found")
			}
			return nil, huma.Error500InternalServerError("failed to look up user", err)
		}

		member := &domain.ProjectMember{ProjectID: input.ID, UserID: input.Body.UserID, AddedAt: time.Now()}
		if err := store.Projects().AddMember(ctx, p.TenantID, member); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to add member", err)
		}

		return &AddMemberOutput{Body: member}, nil
	})
}

// visibleProjects narrows the company's projects to those p may read.
func visibleProjects(ctx context.Context, store DataStore, authz Authorizer, p auth.Principal) ([]*domain.Project, error) {
	projects, err := store.Projects().List(ctx, p.TenantID)
	if err != nil {
		return nil, fmt.Errorf("v1.visibleProjects: %w", err)
	}

	visible := make([]*domain.Project, 0, len(projects))
	for _, project := range projects {
		err := authz.AuthorizeProject(ctx, p, project.ID, auth.AccessRead)
		if err == nil {
			visible = append(visible, project)
			continue
		}
		if !errors.Is(err, domain.ErrForbidden) {
			return nil, fmt.Errorf("v1.visibleProjects %s: %w", project.ID, err)
		}
	}
	return visible, nil
}
