package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

type GetBoardInput struct {
	ProjectID uuid.UUID `path:"projectID" doc:"Project ID"`
}

type BoardColumns struct {
	ProjectID  uuid.UUID              `json:"project_id"`
	Todo       []realtime.TaskSummary `json:"todo"`
	InProgress []realtime.TaskSummary `json:"in_progress"`
	Review     []realtime.TaskSummary `json:"review"`
	Done       []realtime.TaskSummary `json:"done"`
}

type GetBoardOutput struct {
	Body *BoardColumns
}

// GroupBoard splits a task list into columns, preserving order within each.
func GroupBoard(projectID uuid.UUID, tasks []realtime.TaskSummary) *BoardColumns {
	board := &BoardColumns{
		ProjectID:  projectID,
		Todo:       make([]realtime.TaskSummary, 0),
		InProgress: make([]realtime.TaskSummary, 0),
		Review:     make([]realtime.TaskSummary, 0),
		Done:       make([]realtime.TaskSummary, 0),
	}

	for _, t := range tasks {
		switch t.Status {
		case domain.TaskStatusTodo:
			board.Todo = append(board.Todo, t)
		case domain.TaskStatusInProgress:
			board.InProgress = append(board.InProgress, t)
		case domain.TaskStatusReview:
			board.Review = append(board.Review, t)
		case domain.TaskStatusDone:
			board.Done = append(board.Done, t)
		}
	}

	return board
}

func RegisterBoardRoutes(api huma.API, authz Authorizer, board *BoardSync) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{projectID}",
		Summary:     "Get kanban board for a project",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetBoardInput) (*GetBoardOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		if err := authz.AuthorizeProject(ctx, p, input.ProjectID, auth.AccessRead); err != nil {
			return nil, accessError(err)
		}

		tasks, err := board.Board(ctx, p.TenantID, input.ProjectID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tasks for board", err)
		}

		return &GetBoardOutput{Body: GroupBoard(input.ProjectID, tasks)}, nil
	})
}
