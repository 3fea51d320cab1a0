package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

// Hub fans envelopes out to the connections subscribed to a topic.
// Delivery is best-effort and in-process only.
type Hub struct {
	registry *Registry

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates a new hub over registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{registry: registry, conns: make(map[*Conn]struct{})}
}

// Register tracks a live connection so CloseAll can reach it even before
// it subscribes to anything.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll asks every live connection to close. Serving handlers observe
// the close and unregister themselves.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Registry returns the hub's subscription registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Unregister tears c down and removes it from every topic. It is safe to call
// more than once; the serving handler calls it before returning.
func (h *Hub) Unregister(c *Conn) {
	c.Close()
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	topics := h.registry.RemoveConn(c)
	log.Debug().
		Str("conn_id", c.ID().String()).
		Int("topics", len(topics)).
		Msg("ws: connection unregistered")
}

// Publish encodes env once and queues it on every connection subscribed to
// topic. A connection whose queue is full is torn down rather than blocking
// the publisher; it will resubscribe after reconnecting.
func (h *Hub) Publish(_ context.Context, topic realtime.Topic, env realtime.Envelope) error {
	frame, err := realtime.Encode(env)
	if err != nil {
		return fmt.Errorf("ws.Hub.Publish: %w", err)
	}

	delivered := 0
	for _, c := range h.registry.Subscribers(topic) {
		if err := c.enqueue(frame); err != nil {
			if errors.Is(err, ErrQueueFull) {
				log.Warn().
					Str("conn_id", c.ID().String()).
					Str("topic", topic.String()).
					Msg("ws: dropping slow connection")
			}
			h.Unregister(c)
			continue
		}
		delivered++
	}

	log.Debug().
		Str("topic", topic.String()).
		Str("type", string(env.Type)).
		Int("delivered", delivered).
		Msg("ws: published")
	return nil
}

// PublishBoard broadcasts the full task list of a project on its topic.
// typ is KANBAN_CARD_MOVED or TASKS_UPDATED.
func (h *Hub) PublishBoard(ctx context.Context, typ realtime.MessageType, projectID uuid.UUID, tasks []realtime.TaskSummary) error {
	if tasks == nil {
		tasks = []realtime.TaskSummary{}
	}
	env, err := realtime.NewEnvelope(typ, realtime.BoardPayload{ProjectID: projectID, Tasks: tasks})
	if err != nil {
		return fmt.Errorf("ws.Hub.PublishBoard: %w", err)
	}
	return h.Publish(ctx, realtime.ProjectTopic(projectID), env)
}

// PublishComment broadcasts a new comment on its task's topic.
func (h *Hub) PublishComment(ctx context.Context, c *domain.Comment) error {
	env, err := realtime.NewEnvelope(realtime.TypeTaskCommentAdded, realtime.CommentPayload{
		TaskID: c.TaskID,
		Comment: realtime.CommentSummary{
			ID:        c.ID,
			AuthorID:  c.AuthorID,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("ws.Hub.PublishComment: %w", err)
	}
	return h.Publish(ctx, realtime.TaskTopic(c.TaskID), env)
}
