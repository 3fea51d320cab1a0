package client

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

var (
	ErrMoveRejected      = errors.New("client: move rejected")
	ErrUnknownTask       = errors.New("client: task not on board")
	ErrCoordinatorClosed = errors.New("client: coordinator closed")
)

// Mutator is the REST boundary the coordinator drives. APIClient is the
// production implementation. MoveTask may return a nil list with a nil
// error: the move is committed but the server could not load the board.
type Mutator interface {
	MoveTask(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error)
	ListTasks(ctx context.Context, projectID uuid.UUID) ([]realtime.TaskSummary, error)
}

// PendingMove is a move applied locally but not yet confirmed. Unconfirmed
// marks a Prev that came from an earlier move the server rejected.
type PendingMove struct {
	Prev        domain.TaskStatus
	Target      domain.TaskStatus
	Seq         uint64
	Unconfirmed bool
}

// Watcher receives a copy of the board after every change. It runs with the
// coordinator lock held and must not call back into the coordinator.
type Watcher func([]realtime.TaskSummary)

type watcherEntry struct {
	id uint64
	fn Watcher
}

// Coordinator keeps one project's board in sync: it applies moves
// optimistically, reconciles them with the server's answer and merges
// broadcasts without clobbering moves still in flight.
type Coordinator struct {
	projectID uuid.UUID
	topic     realtime.Topic
	transport *Transport
	api       Mutator

	ctx    context.Context //nolint:containedctx // cancels background refetches on Close
	cancel context.CancelFunc

	mu        sync.Mutex
	board     *board
	pending   map[uuid.UUID]PendingMove
	seq       uint64
	watchers  []watcherEntry
	nextWatch uint64
	offs      []func()
	acquired  bool
	opened    bool
	closed    bool
}

func NewCoordinator(projectID uuid.UUID, transport *Transport, api Mutator) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		projectID: projectID,
		topic:     realtime.ProjectTopic(projectID),
		transport: transport,
		api:       api,
		ctx:       ctx,
		cancel:    cancel,
		board:     newBoard(),
		pending:   make(map[uuid.UUID]PendingMove),
	}
}

// Open subscribes to the project topic and loads the board. A failed Open
// leaves the coordinator closed.
func (c *Coordinator) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.offs = append(c.offs,
		c.transport.On(realtime.TypeKanbanCardMoved, c.onBoard),
		c.transport.On(realtime.TypeTasksUpdated, c.onBoard),
		c.transport.OnStatus(c.onStatus),
	)
	c.mu.Unlock()

	if err := c.transport.Subscriptions().Acquire(c.topic); err != nil {
		_ = c.Close()
		return fmt.Errorf("client.Coordinator.Open: %w", err)
	}
	c.mu.Lock()
	c.acquired = true
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("client.Coordinator.Open: %w", err)
	}
	return nil
}

// Close removes the listeners and releases the topic before returning.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	offs, acquired := c.offs, c.acquired
	c.offs, c.acquired = nil, false
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if acquired {
		if err := c.transport.Subscriptions().Release(c.topic); err != nil {
			return fmt.Errorf("client.Coordinator.Close: %w", err)
		}
	}
	return nil
}

// Refresh replaces the board with the server's current list, keeping the
// targets of unresolved moves.
func (c *Coordinator) Refresh(ctx context.Context) error {
	tasks, err := c.api.ListTasks(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("client.Coordinator.Refresh: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCoordinatorClosed
	}
	c.applyLocked(tasks)
	return nil
}

// Move moves taskID to target: the board changes at once, then the server
// decides. On rejection the task returns to its previous column and the
// error wraps ErrMoveRejected. A move superseded by a later move of the same
// task neither reconciles nor rolls back; if it was rejected the board is
// refetched once the later move settles.
func (c *Coordinator) Move(ctx context.Context, taskID uuid.UUID, target domain.TaskStatus) error {
	if !target.Valid() {
		return fmt.Errorf("client.Coordinator.Move %q: %w", target, domain.ErrInvalidStatus)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	task, ok := c.board.task(taskID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("client.Coordinator.Move %s: %w", taskID, ErrUnknownTask)
	}
	c.seq++
	seq := c.seq
	c.pending[taskID] = PendingMove{Prev: task.Status, Target: target, Seq: seq}
	c.board.setStatus(taskID, target)
	c.notifyLocked()
	c.mu.Unlock()

	tasks, err := c.api.MoveTask(ctx, taskID, target)

	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[taskID]
	if !ok || p.Seq != seq {
		if err == nil {
			return nil
		}
		// A later move started from this move's target, which the server
		// never accepted. If that move is still in flight its rollback
		// target is wrong; if it already rolled back, the board shows it.
		if ok {
			p.Unconfirmed = true
			c.pending[taskID] = p
		} else if cur, found := c.board.task(taskID); found && cur.Status == target {
			c.refetchLocked("superseded move rejected")
		}
		return fmt.Errorf("client.Coordinator.Move %s: superseded: %w: %w", taskID, ErrMoveRejected, err)
	}
	delete(c.pending, taskID)

	if err != nil {
		c.board.setStatus(taskID, p.Prev)
		c.notifyLocked()
		log.Warn().Err(err).Str("task_id", taskID.String()).Str("status", string(target)).Msg("client: move rejected, rolled back")
		if p.Unconfirmed {
			c.refetchLocked("rolled back to an unconfirmed status")
		}
		return fmt.Errorf("client.Coordinator.Move %s: %w: %w", taskID, ErrMoveRejected, err)
	}
	if tasks == nil {
		// Committed without a list: keep the target and ask for the board.
		c.refetchLocked("move response without board")
		return nil
	}
	c.applyLocked(tasks)
	return nil
}

// Tasks returns a copy of the board.
func (c *Coordinator) Tasks() []realtime.TaskSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.snapshot()
}

// Pending returns the unresolved move of taskID, if any.
func (c *Coordinator) Pending(taskID uuid.UUID) (PendingMove, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[taskID]
	return p, ok
}

// Watch registers fn for board changes. The returned func removes it.
func (c *Coordinator) Watch(fn Watcher) func() {
	c.mu.Lock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers = append(c.watchers, watcherEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

func (c *Coordinator) onBoard(env realtime.Envelope) {
	var p realtime.BoardPayload
	if err := env.Unmarshal(&p); err != nil {
		log.Warn().Err(err).Msg("client: bad board payload")
		return
	}
	if p.ProjectID != c.projectID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.applyLocked(p.Tasks)
}

// onStatus refetches after every open; broadcasts missed while disconnected
// are never replayed.
func (c *Coordinator) onStatus(s State) {
	if s != StateOpen {
		return
	}
	c.refetch("reconnected")
}

// refetch reloads the board in the background.
func (c *Coordinator) refetch(reason string) {
	go func() {
		if err := c.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
			log.Warn().Err(err).Str("project_id", c.projectID.String()).Str("reason", reason).Msg("client: refetch failed")
		}
	}()
}

func (c *Coordinator) refetchLocked(reason string) {
	if c.closed {
		return
	}
	c.refetch(reason)
}

func (c *Coordinator) applyLocked(tasks []realtime.TaskSummary) {
	c.board.replace(tasks)
	for id, p := range c.pending {
		c.board.setStatus(id, p.Target)
	}
	c.notifyLocked()
}

func (c *Coordinator) notifyLocked() {
	if len(c.watchers) == 0 {
		return
	}
	snap := c.board.snapshot()
	for _, w := range c.watchers {
		safeCall("board", func() { w.fn(snap) })
	}
}
