package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

type mockMutator struct {
	moveFunc func(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error)
	listFunc func(ctx context.Context, projectID uuid.UUID) ([]realtime.TaskSummary, error)
}

func (m *mockMutator) MoveTask(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
	return m.moveFunc(ctx, taskID, status)
}

func (m *mockMutator) ListTasks(ctx context.Context, projectID uuid.UUID) ([]realtime.TaskSummary, error) {
	return m.listFunc(ctx, projectID)
}

// withStatus returns a copy of tasks where id has status.
func withStatus(tasks []realtime.TaskSummary, id uuid.UUID, status domain.TaskStatus) []realtime.TaskSummary {
	out := make([]realtime.TaskSummary, len(tasks))
	copy(out, tasks)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	return out
}

func statusOf(t *testing.T, tasks []realtime.TaskSummary, id uuid.UUID) domain.TaskStatus {
	t.Helper()
	for _, task := range tasks {
		if task.ID == id {
			return task.Status
		}
	}
	t.Fatalf("task %s not on board", id)
	return ""
}

type coordFixture struct {
	projectID uuid.UUID
	tasks     []realtime.TaskSummary
	srv       *fakeServer
	tr        *client.Transport
	api       *mockMutator
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	f := &coordFixture{
		projectID: uuid.New(),
		tasks: []realtime.TaskSummary{
			summary("design", domain.TaskStatusTodo),
			summary("build", domain.TaskStatusInProgress),
			summary("ship", domain.TaskStatusReview),
		},
		srv: &fakeServer{},
	}
	f.tr = newTransport(t, f.srv)
	f.api = &mockMutator{
		listFunc: func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
			return f.tasks, nil
		},
	}
	return f
}

// connect opens the transport and waits until its OPEN status has been
// dispatched, so a coordinator opened afterwards does not see it.
func (f *coordFixture) connect(t *testing.T) {
	t.Helper()
	status := watchStatus(f.tr)
	require.NoError(t, f.tr.Connect(context.Background()))
	assert.Eventually(t, func() bool { return status.saw(client.StateOpen) }, waitFor, 5*time.Millisecond)
}

func (f *coordFixture) open(t *testing.T) *client.Coordinator {
	t.Helper()
	c := client.NewCoordinator(f.projectID, f.tr, f.api)
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoordinator_MoveSucceeds(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)
	id := f.tasks[0].ID

	f.api.moveFunc = func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
		assert.Equal(t, domain.TaskStatusDone, statusOf(t, c.Tasks(), taskID), "optimistic before the server answers")
		p, ok := c.Pending(taskID)
		assert.True(t, ok)
		assert.Equal(t, client.PendingMove{Prev: domain.TaskStatusTodo, Target: domain.TaskStatusDone, Seq: p.Seq}, p)

		server := withStatus(f.tasks, taskID, status)
		server[2].Title = "ship it"
		return server, nil
	}

	require.NoError(t, c.Move(context.Background(), id, domain.TaskStatusDone))

	tasks := c.Tasks()
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, tasks, id))
	assert.Equal(t, "ship it", tasks[2].Title, "server list replaces the board")
	_, pending := c.Pending(id)
	assert.False(t, pending)
}

func TestCoordinator_MoveRejectedRestoresBoardExactly(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)
	before, err := json.Marshal(c.Tasks())
	require.NoError(t, err)

	f.api.moveFunc = func(context.Context, uuid.UUID, domain.TaskStatus) ([]realtime.TaskSummary, error) {
		return nil, &client.APIError{Status: 403, Detail: "not a member"}
	}

	err = c.Move(context.Background(), f.tasks[1].ID, domain.TaskStatusDone)
	require.ErrorIs(t, err, client.ErrMoveRejected)
	require.ErrorIs(t, err, client.ErrForbidden)

	after, err := json.Marshal(c.Tasks())
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, before, after)
	_, pending := c.Pending(f.tasks[1].ID)
	assert.False(t, pending)
}

func TestCoordinator_BroadcastKeepsPendingMove(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.connect(t)
	c := f.open(t)
	moving, other := f.tasks[0].ID, f.tasks[1].ID

	f.api.moveFunc = func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
		// another user moves a different card while ours is in flight
		stale := withStatus(f.tasks, other, domain.TaskStatusDone)
		f.srv.last().push(t, boardEnvelope(t, realtime.TypeKanbanCardMoved, f.projectID, stale))

		assert.Eventually(t, func() bool {
			return statusOf(t, c.Tasks(), other) == domain.TaskStatusDone
		}, waitFor, 5*time.Millisecond)
		assert.Equal(t, domain.TaskStatusReview, statusOf(t, c.Tasks(), taskID), "pending move survives the broadcast")

		return withStatus(stale, taskID, status), nil
	}

	require.NoError(t, c.Move(context.Background(), moving, domain.TaskStatusReview))
	tasks := c.Tasks()
	assert.Equal(t, domain.TaskStatusReview, statusOf(t, tasks, moving))
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, tasks, other))
}

func TestCoordinator_BroadcastReplacesBoard(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.connect(t)
	c := f.open(t)

	updated := []realtime.TaskSummary{summary("only", domain.TaskStatusDone)}
	f.srv.last().push(t, boardEnvelope(t, realtime.TypeTasksUpdated, uuid.New(), nil))
	f.srv.last().push(t, boardEnvelope(t, realtime.TypeTasksUpdated, f.projectID, updated))

	assert.Eventually(t, func() bool { return len(c.Tasks()) == 1 }, waitFor, 5*time.Millisecond,
		"broadcasts for other projects are ignored, ours replaces the board")
	assert.Equal(t, updated, c.Tasks())
}

func TestCoordinator_SupersededMoveDoesNotRollBack(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)
	id := f.tasks[0].ID

	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})
	f.api.moveFunc = func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
		if status == domain.TaskStatusInProgress {
			close(firstStarted)
			<-firstRelease
			return nil, errors.New("stale write")
		}
		return withStatus(f.tasks, taskID, status), nil
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Move(context.Background(), id, domain.TaskStatusInProgress) }()
	<-firstStarted

	require.NoError(t, c.Move(context.Background(), id, domain.TaskStatusDone))
	close(firstRelease)

	require.ErrorIs(t, <-firstErr, client.ErrMoveRejected)
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, c.Tasks(), id), "later move wins")
}

func TestCoordinator_MoveValidation(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)

	require.ErrorIs(t, c.Move(context.Background(), uuid.New(), domain.TaskStatusDone), client.ErrUnknownTask)
	require.ErrorIs(t, c.Move(context.Background(), f.tasks[0].ID, "ARCHIVED"), domain.ErrInvalidStatus)
}

func TestCoordinator_RefetchesAfterReconnect(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.connect(t)

	var mu sync.Mutex
	current := f.tasks
	f.api.listFunc = func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
		mu.Lock()
		defer mu.Unlock()
		return current, nil
	}
	c := f.open(t)

	mu.Lock()
	current = []realtime.TaskSummary{summary("missed while offline", domain.TaskStatusTodo)}
	mu.Unlock()
	require.NoError(t, f.srv.last().Close())

	assert.Eventually(t, func() bool {
		tasks := c.Tasks()
		return len(tasks) == 1 && tasks[0].Title == "missed while offline"
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, f.srv.socket(1).count(t, realtime.TypeSubscribeProject), "project topic resubscribed")
}

func TestCoordinator_CloseReleasesTopic(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.connect(t)
	topic := realtime.ProjectTopic(f.projectID)

	c := client.NewCoordinator(f.projectID, f.tr, f.api)
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 1, f.tr.Subscriptions().Count(topic))

	require.NoError(t, c.Close())
	assert.Equal(t, 0, f.tr.Subscriptions().Count(topic))
	assert.Equal(t, 1, f.srv.last().count(t, realtime.TypeUnsubscribeProject))
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.Move(context.Background(), f.tasks[0].ID, domain.TaskStatusDone), client.ErrCoordinatorClosed)
}

func TestCoordinator_OpenFailureReleases(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.api.listFunc = func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
		return nil, client.ErrNotFound
	}

	c := client.NewCoordinator(f.projectID, f.tr, f.api)
	require.ErrorIs(t, c.Open(context.Background()), client.ErrNotFound)
	assert.Equal(t, 0, f.tr.Subscriptions().Count(realtime.ProjectTopic(f.projectID)))
	require.ErrorIs(t, c.Open(context.Background()), client.ErrCoordinatorClosed)
}

func TestCoordinator_WatchSeesEveryChange(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)
	id := f.tasks[0].ID

	var seen []domain.TaskStatus
	off := c.Watch(func(tasks []realtime.TaskSummary) {
		seen = append(seen, statusOf(t, tasks, id))
	})
	f.api.moveFunc = func(context.Context, uuid.UUID, domain.TaskStatus) ([]realtime.TaskSummary, error) {
		return nil, errors.New("conflict")
	}

	require.Error(t, c.Move(context.Background(), id, domain.TaskStatusDone))
	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusDone, domain.TaskStatusTodo}, seen, "optimistic then rollback")

	off()
	require.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, seen, 2)
}

func TestColumns(t *testing.T) {
	t.Parallel()

	tasks := []realtime.TaskSummary{
		summary("a", domain.TaskStatusDone),
		summary("b", domain.TaskStatusTodo),
		summary("c", domain.TaskStatusDone),
	}
	cols := client.Columns(tasks)

	assert.Len(t, cols, 4)
	assert.Equal(t, []realtime.TaskSummary{tasks[1]}, cols[domain.TaskStatusTodo])
	assert.Equal(t, []realtime.TaskSummary{tasks[0], tasks[2]}, cols[domain.TaskStatusDone])
	assert.Empty(t, cols[domain.TaskStatusReview])
	assert.NotNil(t, cols[domain.TaskStatusReview])
}

func TestCoordinator_DuplicateTaskIDsFirstWins(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.connect(t)
	design := f.tasks[0]
	dup := design
	dup.Status = domain.TaskStatusDone
	dup.Title = "design copy"
	f.api.listFunc = func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
		return append(append([]realtime.TaskSummary{}, f.tasks...), dup), nil
	}

	countOf := func(tasks []realtime.TaskSummary, id uuid.UUID) int {
		n := 0
		for _, task := range tasks {
			if task.ID == id {
				n++
			}
		}
		return n
	}

	c := f.open(t)
	tasks := c.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, 1, countOf(tasks, design.ID))
	assert.Equal(t, "design", tasks[0].Title)
	assert.Equal(t, domain.TaskStatusTodo, tasks[0].Status)

	f.api.moveFunc = func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
		assert.Equal(t, status, statusOf(t, c.Tasks(), taskID), "the visible entry is the one moved")
		return nil, errors.New("conflict")
	}
	require.ErrorIs(t, c.Move(context.Background(), design.ID, domain.TaskStatusReview), client.ErrMoveRejected)
	assert.Equal(t, domain.TaskStatusTodo, c.Tasks()[0].Status)
	assert.Empty(t, client.Columns(c.Tasks())[domain.TaskStatusDone])

	broadcast := []realtime.TaskSummary{dup, f.tasks[1], design}
	f.srv.last().push(t, boardEnvelope(t, realtime.TypeKanbanCardMoved, f.projectID, broadcast))
	assert.Eventually(t, func() bool {
		tasks := c.Tasks()
		return len(tasks) == 2 && tasks[0].Title == "design copy"
	}, waitFor, 5*time.Millisecond, "broadcast duplicates are dropped, first wins")
	assert.Equal(t, 1, countOf(c.Tasks(), design.ID))
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, c.Tasks(), design.ID))
}

func TestCoordinator_CommittedMoveWithoutList(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	c := f.open(t)
	id := f.tasks[0].ID

	var mu sync.Mutex
	server := f.tasks
	f.api.listFunc = func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
		mu.Lock()
		defer mu.Unlock()
		return server, nil
	}
	f.api.moveFunc = func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
		mu.Lock()
		server = withStatus(server, taskID, status)
		server[1].Title = "build v2"
		mu.Unlock()
		return nil, nil
	}

	require.NoError(t, c.Move(context.Background(), id, domain.TaskStatusDone))
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, c.Tasks(), id), "committed move is kept")

	assert.Eventually(t, func() bool { return c.Tasks()[1].Title == "build v2" }, waitFor, 5*time.Millisecond,
		"board is refetched")
	assert.Equal(t, domain.TaskStatusDone, statusOf(t, c.Tasks(), id))
}

func TestCoordinator_RejectedChainRefetches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		firstFailsFirst bool
	}{
		{name: "earlier_move_fails_first", firstFailsFirst: true},
		{name: "later_move_fails_first", firstFailsFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newCoordFixture(t)
			c := f.open(t)
			id := f.tasks[0].ID

			var lists sync.Mutex
			listCalls := 0
			f.api.listFunc = func(context.Context, uuid.UUID) ([]realtime.TaskSummary, error) {
				lists.Lock()
				defer lists.Unlock()
				listCalls++
				return f.tasks, nil
			}

			started := map[domain.TaskStatus]chan struct{}{
				domain.TaskStatusInProgress: make(chan struct{}),
				domain.TaskStatusDone:       make(chan struct{}),
			}
			release := map[domain.TaskStatus]chan struct{}{
				domain.TaskStatusInProgress: make(chan struct{}),
				domain.TaskStatusDone:       make(chan struct{}),
			}
			f.api.moveFunc = func(_ context.Context, _ uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
				close(started[status])
				<-release[status]
				return nil, errors.New("conflict")
			}

			firstErr := make(chan error, 1)
			secondErr := make(chan error, 1)
			go func() { firstErr <- c.Move(context.Background(), id, domain.TaskStatusInProgress) }()
			<-started[domain.TaskStatusInProgress]
			go func() { secondErr <- c.Move(context.Background(), id, domain.TaskStatusDone) }()
			<-started[domain.TaskStatusDone]

			if tt.firstFailsFirst {
				close(release[domain.TaskStatusInProgress])
				require.ErrorIs(t, <-firstErr, client.ErrMoveRejected)
				close(release[domain.TaskStatusDone])
				require.ErrorIs(t, <-secondErr, client.ErrMoveRejected)
			} else {
				close(release[domain.TaskStatusDone])
				require.ErrorIs(t, <-secondErr, client.ErrMoveRejected)
				close(release[domain.TaskStatusInProgress])
				require.ErrorIs(t, <-firstErr, client.ErrMoveRejected)
			}

			assert.Eventually(t, func() bool {
				return statusOf(t, c.Tasks(), id) == domain.TaskStatusTodo
			}, waitFor, 5*time.Millisecond, "board returns to the server's status, not the rejected one")
			lists.Lock()
			assert.GreaterOrEqual(t, listCalls, 2, "open plus one refetch")
			lists.Unlock()
		})
	}
}
