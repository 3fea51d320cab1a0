package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Tenants() domain.TenantRepository
	Users() domain.UserRepository
	Projects() domain.ProjectRepository
	Tasks() domain.TaskRepository
	Comments() domain.CommentRepository
	Audit() domain.AuditRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	RegisterWithRole(ctx context.Context, tenantID uuid.UUID, email, password, name, role string) (*domain.User, error)
	Login(ctx context.Context, tenantID uuid.UUID, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Authorizer decides project access. *auth.Authorizer satisfies this interface.
type Authorizer interface {
	AuthorizeProject(ctx context.Context, p auth.Principal, projectID uuid.UUID, access auth.Access) error
	AuthorizeTask(ctx context.Context, p auth.Principal, taskID uuid.UUID, access auth.Access) (*domain.Task, error)
}

// Publisher pushes board and comment events to websocket subscribers.
// *ws.Hub satisfies this interface.
type Publisher interface {
	PublishBoard(ctx context.Context, typ realtime.MessageType, projectID uuid.UUID, tasks []realtime.TaskSummary) error
	PublishComment(ctx context.Context, c *domain.Comment) error
}

// BoardCache holds the last known task list per project.
// *redis.BoardCache satisfies this interface.
type BoardCache interface {
	GetBoard(ctx context.Context, tenantID, projectID uuid.UUID) ([]realtime.TaskSummary, bool, error)
	SetBoard(ctx context.Context, tenantID, projectID uuid.UUID, tasks []realtime.TaskSummary) error
	InvalidateBoard(ctx context.Context, tenantID, projectID uuid.UUID) error
}
