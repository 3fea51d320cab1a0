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

type AddCommentInput struct {
	TaskID uuid.UUID `path:"id" doc:"Task ID"`
	Body   struct {
		Body string `json:"body" minLength:"1" maxLength:"10000" doc:"Comment text"`
	}
}

type AddCommentOutput struct {
	Body *domain.Comment
}

type ListCommentsInput struct {
	TaskID uuid.UUID `path:"id" doc:"Task ID"`
}

type ListCommentsOutput struct {
	Body []*domain.Comment
}

func RegisterCommentRoutes(api huma.API, store DataStore, authz Authorizer, pub Publisher) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/comments",
		Summary:       "Comment on a task",
		Tags:          []string{"Comments"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddCommentInput) (*AddCommentOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := authz.AuthorizeTask(ctx, p, input.TaskID, auth.AccessWrite); err != nil {
			return nil, accessError(err)
		}

		c, err := domain.NewComment(p.TenantID, input.TaskID, p.UserID, input.Body.Body)
		if err != nil {
			return nil, validationError(err)
		}
		if err := store.Comments().Create(ctx, c); err != nil {
			return nil, huma.Error500InternalServerError("failed to add comment", err)
		}

		if err := pub.PublishComment(ctx, c); err != nil {
			log.Warn().Err(err).Str("task_id", c.TaskID.String()).Msg("comment publish failed")
		}

		return &AddCommentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/comments",
		Summary:     "List comments on a task",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *ListCommentsInput) (*ListCommentsOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := authz.AuthorizeTask(ctx, p, input.TaskID, auth.AccessRead); err != nil {
			return nil, accessError(err)
		}

		comments, err := store.Comments().ListByTask(ctx, p.TenantID, input.TaskID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list comments", err)
		}

		return &ListCommentsOutput{Body: comments}, nil
	})
}
