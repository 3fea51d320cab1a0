package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

type CreateTaskInput struct {
	Body struct {
		ProjectID   uuid.UUID  `json:"project_id" doc:"Project ID"`
		Title       string     `json:"title" minLength:"1" maxLength:"500" doc:"Task title"`
		Description string     `json:"description,omitempty" doc:"Task description"`
		Priority    string     `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT" doc:"Task priority (default MEDIUM)"`
		DueDate     *time.Time `json:"due_date,omitempty" doc:"Due date"`
		Tags        []string   `json:"tags,omitempty" maxItems:"20" doc:"Free-form tags"`
		AssignedTo  *uuid.UUID `json:"assigned_to,omitempty" doc:"Assigned user ID"`
	}
}

type CreateTaskOutput struct {
	Body *domain.Task
}

type ListTasksInput struct {
	ProjectID uuid.UUID `query:"project_id" required:"true" doc:"Project ID"`
	Status    string    `query:"status" doc:"Filter by status"`
}

type ListTasksOutput struct {
	Body []*domain.Task
}

type GetTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

type GetTaskOutput struct {
	Body *domain.Task
}

type UpdateTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Title       *string    `json:"title,omitempty" minLength:"1" maxLength:"500" doc:"Task title"`
		Description *string    `json:"description,omitempty" doc:"Task description"`
		Priority    *string    `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT" doc:"Task priority"`
		DueDate     *time.Time `json:"due_date,omitempty" doc:"Due date"`
		Tags        []string   `json:"tags,omitempty" maxItems:"20" doc:"Replaces all tags when present"`
		AssignedTo  *uuid.UUID `json:"assigned_to,omitempty" doc:"Assigned user ID"`
	}
}

type UpdateTaskOutput struct {
	Body *domain.Task
}

type MoveTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Status string `json:"status" minLength:"1" doc:"Target column"`
	}
}

// MoveTaskResult carries the moved task and the project's full task list
// after the move, the same list broadcast to subscribers. Tasks is null when
// the list could not be loaded; the move itself is committed either way.
type MoveTaskResult struct {
	Task      *domain.Task           `json:"task"`
	ProjectID uuid.UUID              `json:"project_id"`
	Tasks     []realtime.TaskSummary `json:"tasks"`
}

type MoveTaskOutput struct {
	Body *MoveTaskResult
}

type DeleteTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

func RegisterTaskRoutes(api huma.API, store DataStore, authz Authorizer, board *BoardSync) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a new task",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTaskInput) (*CreateTaskOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if err := authz.AuthorizeProject(ctx, p, input.Body.ProjectID, auth.AccessWrite); err != nil {
			return nil, accessError(err)
		}

		t, err := domain.NewTask(p.TenantID, input.Body.ProjectID, p.UserID,
			input.Body.Title, input.Body.Description, domain.TaskPriority(input.Body.Priority))
		if err != nil {
			return nil, validationError(err)
		}
		t.DueDate = input.Body.DueDate
		t.AssignedTo = input.Body.AssignedTo
		if input.Body.Tags != nil {
			t.Tags = input.Body.Tags
		}

		if err := store.Tasks().Create(ctx, t); err != nil {
			return nil, huma.Error500InternalServerError("failed to create task", err)
		}

		recordActivity(ctx, store, t, p.UserID, domain.ActionTaskCreated, map[string]any{"title": t.Title})

		board.Refresh(ctx, p.TenantID, t.ProjectID, realtime.TypeTasksUpdated)

		return &CreateTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks for a project",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if err := authz.AuthorizeProject(ctx, p, input.ProjectID, auth.AccessRead); err != nil {
			return nil, accessError(err)
		}

		if input.Status != "" {
			status := domain.TaskStatus(input.Status)
			if !status.Valid() {
				return nil, huma.Error400BadRequest("unknown task status: " + input.Status)
			}
			tasks, err := store.Tasks().ListByStatus(ctx, p.TenantID, input.ProjectID, status)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list tasks", err)
			}
			return &ListTasksOutput{Body: tasks}, nil
		}

		tasks, err := store.Tasks().ListByProject(ctx, p.TenantID, input.ProjectID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tasks", err)
		}

		return &ListTasksOutput{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		t, err := authz.AuthorizeTask(ctx, p, input.ID, auth.AccessRead)
		if err != nil {
			return nil, accessError(err)
		}

		return &GetTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*UpdateTaskOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		existing, err := authz.AuthorizeTask(ctx, p, input.ID, auth.AccessWrite)
		if err != nil {
			return nil, accessError(err)
		}

		if input.Body.Title != nil {
			existing.Title = *input.Body.Title
		}
		if input.Body.Description != nil {
			existing.Description = *input.Body.Description
		}
		if input.Body.Priority != nil {
			priority := domain.TaskPriority(*input.Body.Priority)
			if !priority.Valid() {
				return nil, huma.Error400BadRequest("unknown task priority: " + *input.Body.Priority)
			}
			existing.Priority = priority
		}
		if input.Body.DueDate != nil {
			existing.DueDate = input.Body.DueDate
		}
		if input.Body.Tags != nil {
			existing.Tags = input.Body.Tags
		}
		if input.Body.AssignedTo != nil {
			existing.AssignedTo = input.Body.AssignedTo
		}
		existing.UpdatedAt = time.Now()

		if err := store.Tasks().Update(ctx, existing); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to update task", err)
		}

		recordActivity(ctx, store, existing, p.UserID, domain.ActionTaskUpdated, nil)

		board.Refresh(ctx, p.TenantID, existing.ProjectID, realtime.TypeTasksUpdated)

		return &UpdateTaskOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task to another board column",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *MoveTaskInput) (*MoveTaskOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		target := domain.TaskStatus(input.Body.Status)
		if !target.Valid() {
			return nil, huma.Error400BadRequest("unknown task status: " + input.Body.Status)
		}

		existing, err := authz.AuthorizeTask(ctx, p, input.ID, auth.AccessWrite)
		if err != nil {
			return nil, accessError(err)
		}

		if err := store.Tasks().UpdateStatus(ctx, p.TenantID, input.ID, target); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to update task status", err)
		}
		recordActivity(ctx, store, existing, p.UserID, domain.ActionTaskMoved, map[string]any{
			"from": string(existing.Status),
			"to":   string(target),
		})
		existing.Status = target
		existing.UpdatedAt = time.Now()

		tasks := board.Refresh(ctx, p.TenantID, existing.ProjectID, realtime.TypeKanbanCardMoved)

		return &MoveTaskOutput{Body: &MoveTaskResult{
			Task:      existing,
			ProjectID: existing.ProjectID,
			Tasks:     tasks,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteTaskInput) (*struct{}, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		existing, err := authz.AuthorizeTask(ctx, p, input.ID, auth.AccessWrite)
		if err != nil {
			return nil, accessError(err)
		}

		if err := store.Tasks().Delete(ctx, p.TenantID, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete task", err)
		}

		recordActivity(ctx, store, existing, p.UserID, domain.ActionTaskDeleted, map[string]any{"title": existing.Title})

		board.Refresh(ctx, p.TenantID, existing.ProjectID, realtime.TypeTasksUpdated)

		return nil, nil
	})
}
