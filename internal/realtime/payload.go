package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
)

// ProjectRef is the payload of SUBSCRIBE_PROJECT and UNSUBSCRIBE_PROJECT.
type ProjectRef struct {
	ProjectID uuid.UUID `json:"projectId"`
}

// TaskRef is the payload of SUBSCRIBE_TASK and UNSUBSCRIBE_TASK.
type TaskRef struct {
	TaskID uuid.UUID `json:"taskId"`
}

// TaskSummary is the card-level view of a task carried in board broadcasts.
type TaskSummary struct {
	ID       uuid.UUID           `json:"id"`
	Title    string              `json:"title"`
	Status   domain.TaskStatus   `json:"status"`
	Priority domain.TaskPriority `json:"priority"`
	DueDate  *time.Time          `json:"dueDate,omitempty"`
	Tags     []string            `json:"tags"`
}

// Summarize converts tasks to their wire form, preserving order.
func Summarize(tasks []*domain.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, TaskSummary{
			ID:       t.ID,
			Title:    t.Title,
			Status:   t.Status,
			Priority: t.Priority,
			DueDate:  t.DueDate,
			Tags:     tags,
		})
	}
	return out
}

// BoardPayload is the payload of KANBAN_CARD_MOVED and TASKS_UPDATED: the
// complete task list of the project, replacing whatever the receiver holds.
type BoardPayload struct {
	ProjectID uuid.UUID     `json:"projectId"`
	Tasks     []TaskSummary `json:"tasks"`
}

// CommentSummary is the wire form of a task comment.
type CommentSummary struct {
	ID        uuid.UUID `json:"id"`
	AuthorID  uuid.UUID `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentPayload is the payload of TASK_COMMENT_ADDED.
type CommentPayload struct {
	TaskID  uuid.UUID      `json:"taskId"`
	Comment CommentSummary `json:"comment"`
}

// Error codes carried by ERROR envelopes.
const (
	CodeForbidden   = "forbidden"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeTooMany     = "too_many_topics"
	CodeInternal    = "internal"
)

// ErrorPayload is the payload of ERROR. Type and Topic identify the request
// that was rejected when there is one.
type ErrorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Type    MessageType `json:"type,omitempty"`
	Topic   Topic       `json:"topic,omitempty"`
}
