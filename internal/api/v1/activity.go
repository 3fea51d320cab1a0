package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
)

type ListActivityInput struct {
	ID    uuid.UUID `path:"id" doc:"Task ID"`
	Limit int       `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Maximum entries, newest first"`
}

type ListActivityOutput struct {
	Body []*domain.AuditEntry
}

// recordActivity appends to a task's history. The change it describes has
// already been stored, so a failure is only logged.
func recordActivity(ctx context.Context, store DataStore, task *domain.Task, actorID uuid.UUID, action string, details map[string]any) {
	entry := domain.NewAuditEntry(task, actorID, action, details)
	if err := store.Audit().Record(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("task_id", task.ID.String()).
			Str("action", action).
			Msg("failed to record task activity")
	}
}

func RegisterActivityRoutes(api huma.API, store DataStore, authz Authorizer) {
	huma.Register(api, huma.Operation{
		OperationID: "list-task-activity",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/activity",
		Summary:     "List the change history of a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListActivityInput) (*ListActivityOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		if _, err := authz.AuthorizeTask(ctx, p, input.ID, auth.AccessRead); err != nil {
			return nil, accessError(err)
		}

		entries, err := store.Audit().ListByTask(ctx, p.TenantID, input.ID, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list task activity", err)
		}

		return &ListActivityOutput{Body: entries}, nil
	})
}
