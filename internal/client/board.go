package client

import (
	"slices"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

// board is the ordered task list of one project plus an id index. It is
// guarded by the owning Coordinator's mutex.
type board struct {
	tasks []realtime.TaskSummary
	index map[uuid.UUID]int
}

func newBoard() *board {
	return &board{index: make(map[uuid.UUID]int)}
}

// replace installs tasks as the board. An id seen twice keeps its first
// entry; later copies are dropped.
func (b *board) replace(tasks []realtime.TaskSummary) {
	clear(b.index)
	b.tasks = make([]realtime.TaskSummary, 0, len(tasks))
	for _, t := range cloneTasks(tasks) {
		if _, dup := b.index[t.ID]; dup {
			continue
		}
		b.index[t.ID] = len(b.tasks)
		b.tasks = append(b.tasks, t)
	}
}

func (b *board) task(id uuid.UUID) (realtime.TaskSummary, bool) {
	i, ok := b.index[id]
	if !ok {
		return realtime.TaskSummary{}, false
	}
	return b.tasks[i], true
}

func (b *board) setStatus(id uuid.UUID, status domain.TaskStatus) bool {
	i, ok := b.index[id]
	if !ok {
		return false
	}
	b.tasks[i].Status = status
	return true
}

func (b *board) snapshot() []realtime.TaskSummary {
	return cloneTasks(b.tasks)
}

func cloneTasks(tasks []realtime.TaskSummary) []realtime.TaskSummary {
	out := make([]realtime.TaskSummary, len(tasks))
	for i, t := range tasks {
		t.Tags = slices.Clone(t.Tags)
		if t.DueDate != nil {
			due := *t.DueDate
			t.DueDate = &due
		}
		out[i] = t
	}
	return out
}

// Columns groups tasks by status in board order, keeping list order inside
// each column.
func Columns(tasks []realtime.TaskSummary) map[domain.TaskStatus][]realtime.TaskSummary {
	cols := make(map[domain.TaskStatus][]realtime.TaskSummary, len(domain.TaskStatuses))
	for _, s := range domain.TaskStatuses {
		cols[s] = []realtime.TaskSummary{}
	}
	for _, t := range tasks {
		cols[t.Status] = append(cols[t.Status], t)
	}
	return cols
}
